package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/health-research/backend/pkg/logger"
	"github.com/health-research/backend/pkg/retry"
)

type AnthropicClient struct {
	guard
	client anthropic.Client
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	// Retries are handled by the guard.
	opts = append(opts, option.WithMaxRetries(0))

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	return &AnthropicClient{
		guard:  newGuard(cfg),
		client: anthropic.NewClient(opts...),
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature, maxTokens := c.params(req)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		}
	}

	var result *CompletionResponse

	err := c.run(ctx, func(ctx context.Context) error {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) && isClientError(apiErr.StatusCode) {
				return retry.Permanent(fmt.Errorf("failed to create message: %w", err))
			}
			return fmt.Errorf("failed to create message: %w", err)
		}

		for _, block := range msg.Content {
			if block.Type == "text" && block.Text != "" {
				prompt := int(msg.Usage.InputTokens)
				completion := int(msg.Usage.OutputTokens)
				result = &CompletionResponse{
					Content: block.Text,
					Usage: Usage{
						PromptTokens:     prompt,
						CompletionTokens: completion,
						TotalTokens:      prompt + completion,
					},
				}
				return nil
			}
		}
		return retry.Permanent(ErrEmptyCompletion)
	})
	if err != nil {
		return nil, err
	}

	c.recordUsage(result.Usage)
	return result, nil
}
