package ingestion

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/internal/retrieval"
	"github.com/health-research/backend/pkg/logger"
)

const DefaultWorkers = 4

// DocumentRecorder keeps an audit copy of every indexed chunk.
type DocumentRecorder interface {
	UpsertDocument(ctx context.Context, doc models.Document) error
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Workers      int
	Recorder     DocumentRecorder
}

// SeedFile is the on-disk format of a starter knowledge base.
type SeedFile struct {
	Collection string            `yaml:"collection"`
	Documents  []models.Document `yaml:"documents"`
}

// Processor turns raw documents into indexed chunks.
type Processor struct {
	retriever    retrieval.Retriever
	recorder     DocumentRecorder
	chunkSize    int
	chunkOverlap int

	loadPool  pond.ResultPool[[]models.Document]
	indexPool pond.ResultPool[int]
}

func NewProcessor(retriever retrieval.Retriever, opts Options) *Processor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = models.DefaultChunkSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = models.DefaultChunkOverlap
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Processor{
		retriever:    retriever,
		recorder:     opts.Recorder,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		loadPool:     pond.NewResultPool[[]models.Document](opts.Workers),
		indexPool:    pond.NewResultPool[int](opts.Workers),
	}
}

func (p *Processor) Close() {
	p.loadPool.StopAndWait()
	p.indexPool.StopAndWait()
}

func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Documents))
	for i, doc := range seed.Documents {
		if doc.DocID == "" {
			return nil, fmt.Errorf("seed document %d has no id", i)
		}
		if seen[doc.DocID] {
			return nil, fmt.Errorf("duplicate seed document id %q", doc.DocID)
		}
		seen[doc.DocID] = true
		if seed.Documents[i].Source == "" {
			seed.Documents[i].Source = "seed"
		}
	}

	return &seed, nil
}

// Seed indexes the seed file unless the knowledge base already holds data.
// It returns the number of chunks written.
func (p *Processor) Seed(ctx context.Context, path string, force bool) (int, error) {
	if !force {
		n, err := p.retriever.Count(ctx)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			logger.Info("Knowledge base already has data, skipping seed", zap.Int("chunks", n))
			return 0, nil
		}
	}

	seed, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}

	logger.Info("Seeding knowledge base",
		zap.String("collection", seed.Collection),
		zap.Int("documents", len(seed.Documents)),
	)
	return p.ProcessDocuments(ctx, seed.Documents)
}

// IngestFiles loads YAML seed files, HTML pages and plain-text files and
// indexes their content.
func (p *Processor) IngestFiles(ctx context.Context, paths []string) (int, error) {
	group := p.loadPool.NewGroupContext(ctx)
	for _, path := range paths {
		group.SubmitErr(func() ([]models.Document, error) {
			return loadFile(path)
		})
	}

	loaded, err := group.Wait()
	if err != nil {
		return 0, err
	}

	var docs []models.Document
	for _, batch := range loaded {
		docs = append(docs, batch...)
	}
	return p.ProcessDocuments(ctx, docs)
}

// ProcessDocuments chunks and indexes docs. Documents shorter than one chunk
// are indexed under their own id.
func (p *Processor) ProcessDocuments(ctx context.Context, docs []models.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	group := p.indexPool.NewGroupContext(ctx)
	for _, doc := range docs {
		group.SubmitErr(func() (int, error) {
			n, err := p.processDocument(ctx, doc)
			if err != nil {
				metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
				return 0, fmt.Errorf("failed to process %s: %w", doc.DocID, err)
			}
			metrics.DocumentsProcessed.WithLabelValues("success").Inc()
			return n, nil
		})
	}

	counts, err := group.Wait()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	logger.Info("Documents processed successfully",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", total),
	)
	return total, nil
}

func (p *Processor) processDocument(ctx context.Context, doc models.Document) (int, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return 0, errors.New("no content")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	var chunks []models.Document
	if len([]rune(doc.Content)) <= p.chunkSize {
		chunks = []models.Document{doc}
	} else {
		chunks = doc.Chunk(p.chunkSize, p.chunkOverlap)
	}

	if err := p.retriever.Index(ctx, chunks); err != nil {
		return 0, err
	}

	if p.recorder != nil {
		for _, c := range chunks {
			if err := p.recorder.UpsertDocument(ctx, c); err != nil {
				logger.Warn("Failed to record document", zap.String("doc_id", c.DocID), zap.Error(err))
			}
		}
	}

	logger.Debug("Document indexed", zap.String("doc_id", doc.DocID), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func loadFile(path string) ([]models.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		seed, err := LoadSeed(path)
		if err != nil {
			return nil, err
		}
		return seed.Documents, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := models.Document{
		DocID:    generateID(path),
		Source:   path,
		Metadata: map[string]any{},
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		title, text, err := cleanHTML(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		doc.Content = text
		doc.Metadata["title"] = title
	default:
		doc.Content = collapseSpace(string(data))
	}

	if doc.Content == "" {
		return nil, fmt.Errorf("no content extracted from %s", path)
	}
	return []models.Document{doc}, nil
}

func cleanHTML(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return title, collapseSpace(doc.Find("body").Text()), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func generateID(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
