package retrieval

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

type indexedChunk struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	ParentID string `json:"parent_id"`
}

// BleveRetriever is a full-text index over the knowledge base. An empty path
// keeps the index in memory.
type BleveRetriever struct {
	index bleve.Index
	meta  map[string]models.Document
	mu    sync.RWMutex
}

func NewBleveRetriever(path string) (*BleveRetriever, error) {
	index, err := openIndex(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	logger.Info("Bleve retriever initialized", zap.String("path", path))

	return &BleveRetriever{
		index: index,
		meta:  make(map[string]models.Document),
	}, nil
}

func openIndex(path string) (bleve.Index, error) {
	if path == "" {
		return bleve.NewMemOnly(bleve.NewIndexMapping())
	}
	if _, err := os.Stat(path); err == nil {
		return bleve.Open(path)
	}
	return bleve.New(path, bleve.NewIndexMapping())
}

func (b *BleveRetriever) Backend() string { return BackendBleve }

func (b *BleveRetriever) Index(ctx context.Context, docs []models.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		parent, _ := doc.Metadata["parent_id"].(string)
		if err := batch.Index(doc.DocID, indexedChunk{
			Content:  doc.Content,
			Source:   doc.Source,
			ParentID: parent,
		}); err != nil {
			return fmt.Errorf("failed to index %s: %w", doc.DocID, err)
		}
		b.meta[doc.DocID] = doc
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to commit index batch: %w", err)
	}

	logger.Debug("Documents indexed", zap.Int("count", len(docs)))
	return nil
}

func (b *BleveRetriever) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	req.Fields = []string{"content", "source"}

	b.mu.RLock()
	defer b.mu.RUnlock()

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	passages := make([]Passage, 0, len(res.Hits))
	for _, hit := range res.Hits {
		p := Passage{DocID: hit.ID, Score: hit.Score}
		if doc, ok := b.meta[hit.ID]; ok {
			p.Content = doc.Content
			p.Source = doc.Source
			p.Metadata = doc.Metadata
		} else {
			// Documents indexed by an earlier process only exist as stored fields.
			p.Content, _ = hit.Fields["content"].(string)
			p.Source, _ = hit.Fields["source"].(string)
		}
		passages = append(passages, p)
	}

	metrics.RetrievalResults.WithLabelValues(BackendBleve).Observe(float64(len(passages)))
	logger.Debug("Bleve search completed",
		zap.String("query", query),
		zap.Int("results", len(passages)),
	)

	return passages, nil
}

func (b *BleveRetriever) Count(context.Context) (int, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

func (b *BleveRetriever) Close() error {
	return b.index.Close()
}
