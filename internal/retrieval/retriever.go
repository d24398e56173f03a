package retrieval

import (
	"context"
	"fmt"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/config"
)

const (
	BackendNone   = "none"
	BackendBleve  = "bleve"
	BackendMilvus = "milvus"

	DefaultTopK = 4
)

// Passage is one retrieved chunk of the knowledge base.
type Passage struct {
	DocID    string
	Content  string
	Source   string
	Score    float64
	Metadata map[string]any
}

// Retriever finds passages relevant to a health question.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
	Index(ctx context.Context, docs []models.Document) error
	// Count reports how many chunks the backend holds.
	Count(ctx context.Context) (int, error)
	Backend() string
	Close() error
}

// New selects the backend named in cfg.Retrieval.Backend. The milvus
// backend needs an embedder.
func New(ctx context.Context, cfg *config.Config, embedder llm.Embedder) (Retriever, error) {
	switch cfg.Retrieval.Backend {
	case BackendNone, "":
		return Nop{}, nil
	case BackendBleve:
		return NewBleveRetriever(cfg.Retrieval.IndexPath)
	case BackendMilvus:
		if embedder == nil {
			return nil, fmt.Errorf("failed to create milvus retriever: an embedding provider is required")
		}
		return NewMilvusRetriever(ctx, MilvusConfig{
			Endpoint:       cfg.Milvus.Endpoint,
			APIKey:         cfg.Milvus.APIKey,
			CollectionName: cfg.Milvus.CollectionName,
			VectorDim:      cfg.Milvus.VectorDim,
		}, embedder)
	default:
		return nil, fmt.Errorf("unsupported retrieval backend: %s", cfg.Retrieval.Backend)
	}
}

// Nop is the disabled backend; it never finds anything.
type Nop struct{}

func (Nop) Search(context.Context, string, int) ([]Passage, error) { return nil, nil }
func (Nop) Index(context.Context, []models.Document) error         { return nil }
func (Nop) Count(context.Context) (int, error)                      { return 0, nil }
func (Nop) Backend() string                                        { return BackendNone }
func (Nop) Close() error                                           { return nil }
