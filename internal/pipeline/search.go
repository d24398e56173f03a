package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/retrieval"
	"github.com/health-research/backend/pkg/logger"
)

const NoDocumentsMessage = "No documents found in the health RAG store."

const searchSystemPrompt = `You specialise in finding reliable medical information from curated sources.

You are given passages retrieved from a health knowledge base. Quote the passages that are relevant to the question verbatim, each prefixed with its [doc_id]. Drop passages that are not relevant. Do not add information that is not in the passages.`

type SearchAgent struct {
	base
	retriever retrieval.Retriever
	topK      int
}

func NewSearchAgent(client llm.Completer, retriever retrieval.Retriever, topK int) *SearchAgent {
	if retriever == nil {
		retriever = retrieval.Nop{}
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	return &SearchAgent{
		base:      base{name: "Search Agent", role: "Health Document Retriever", client: client},
		retriever: retriever,
		topK:      topK,
	}
}

func (a *SearchAgent) Process(ctx context.Context, query string) (string, error) {
	passages, err := a.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	return a.Compose(ctx, query, passages)
}

// Retrieve queries the knowledge base. In fallback mode a retrieval error is
// logged and treated as an empty result.
func (a *SearchAgent) Retrieve(ctx context.Context, query string) ([]retrieval.Passage, error) {
	passages, err := a.retriever.Search(ctx, query, a.topK)
	if err != nil {
		if a.client == nil {
			logger.Warn("Retrieval failed, continuing without documents",
				zap.String("backend", a.retriever.Backend()),
				zap.Error(err),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve documents: %w", err)
	}
	return passages, nil
}

func (a *SearchAgent) Compose(ctx context.Context, query string, passages []retrieval.Passage) (string, error) {
	if len(passages) == 0 {
		return NoDocumentsMessage, nil
	}

	if a.client == nil {
		chunks := make([]string, len(passages))
		for i, p := range passages {
			chunks[i] = p.Content
		}
		return fmt.Sprintf("Retrieved %d document chunks:\n\n%s", len(chunks), strings.Join(chunks, "\n\n")), nil
	}

	var sb strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&sb, "[%s] %s\n\n", p.DocID, p.Content)
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: searchSystemPrompt,
		UserPrompt:   fmt.Sprintf("Question: %s\n\nPassages:\n%s", query, sb.String()),
		Temperature:  0.1,
		MaxTokens:    1200,
	})
	if err != nil {
		return "", fmt.Errorf("failed to select passages: %w", err)
	}
	return resp.Content, nil
}
