package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/health-research/backend/pkg/logger"
	"github.com/health-research/backend/pkg/retry"
)

// OpenAIClient talks to OpenAI and to OpenAI-compatible endpoints such as
// Mistral and a local Ollama server.
type OpenAIClient struct {
	guard
	client         *openai.Client
	embeddingModel string
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("base_url", oc.BaseURL),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &OpenAIClient{
		guard:          newGuard(cfg),
		client:         openai.NewClientWithConfig(oc),
		embeddingModel: cfg.EmbeddingModel,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature, maxTokens := c.params(req)

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.run(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			},
		)
		if err != nil {
			return classify(fmt.Errorf("failed to create completion: %w", err))
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return retry.Permanent(ErrEmptyCompletion)
		}

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.recordUsage(result.Usage)
	return result, nil
}

func (c *OpenAIClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("failed to generate embedding: %w", ErrEmptyCompletion)
	}
	return embeddings[0], nil
}

func (c *OpenAIClient) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var embeddings [][]float32

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.run(ctx, func(ctx context.Context) error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return classify(fmt.Errorf("failed to generate batch embeddings: %w", err))
			}

			for _, data := range resp.Data {
				embeddings = append(embeddings, data.Embedding)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// classify stops retries on client errors other than rate limiting.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isClientError(apiErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isClientError(reqErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	return err
}

func isClientError(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
