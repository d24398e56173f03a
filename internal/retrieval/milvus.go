package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

// MilvusRetriever stores chunk embeddings in a Milvus (or Zilliz Cloud)
// collection and answers queries by vector similarity.
type MilvusRetriever struct {
	client         client.Client
	embedder       llm.Embedder
	collectionName string
	vectorDim      int
}

func NewMilvusRetriever(ctx context.Context, cfg MilvusConfig, embedder llm.Embedder) (*MilvusRetriever, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus retriever initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("collection", cfg.CollectionName),
	)

	m := &MilvusRetriever{
		client:         c,
		embedder:       embedder,
		collectionName: cfg.CollectionName,
		vectorDim:      cfg.VectorDim,
	}

	if err := m.ensureCollection(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return m, nil
}

func (m *MilvusRetriever) Backend() string { return BackendMilvus }

func (m *MilvusRetriever) Close() error {
	return m.client.Close()
}

func (m *MilvusRetriever) Count(ctx context.Context) (int, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("failed to parse row count: %w", err)
	}
	return n, nil
}

func (m *MilvusRetriever) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Health knowledge base embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "source",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "parent_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func (m *MilvusRetriever) Index(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	embeddings, err := m.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("failed to embed documents: got %d embeddings for %d documents", len(embeddings), len(docs))
	}

	chunkIDs := make([]string, len(docs))
	sources := make([]string, len(docs))
	parents := make([]string, len(docs))
	timestamps := make([]int64, len(docs))

	for i, doc := range docs {
		chunkIDs[i] = doc.DocID
		sources[i] = doc.Source
		parents[i], _ = doc.Metadata["parent_id"].(string)
		ts := doc.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		timestamps[i] = ts.Unix()
	}

	_, err = m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnVarChar("parent_id", parents),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(docs)))
	return nil
}

func (m *MilvusRetriever) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryEmbedding, err := m.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{"chunk_id", "text", "source", "parent_id"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	passages := make([]Passage, 0, k)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceCol := sr.Fields.GetColumn("source")
		parentCol := sr.Fields.GetColumn("parent_id")
		if chunkIDCol == nil || textCol == nil {
			continue
		}

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.GetAsString(i)
			text, _ := textCol.GetAsString(i)
			p := Passage{
				DocID:    chunkID,
				Content:  text,
				Score:    float64(sr.Scores[i]),
				Metadata: map[string]any{},
			}
			if sourceCol != nil {
				p.Source, _ = sourceCol.GetAsString(i)
			}
			if parentCol != nil {
				parent, _ := parentCol.GetAsString(i)
				p.Metadata["parent_id"] = parent
			}
			passages = append(passages, p)
		}
	}

	metrics.RetrievalResults.WithLabelValues(BackendMilvus).Observe(float64(len(passages)))
	logger.Info("Vector search completed",
		zap.Int("topK", k),
		zap.Int("results", len(passages)),
	)

	return passages, nil
}
