package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/pkg/circuitbreaker"
	"github.com/health-research/backend/pkg/logger"
	"github.com/health-research/backend/pkg/retry"
)

var (
	ErrMissingCredentials = errors.New("provider requires an API key")
	ErrEmptyCompletion    = errors.New("provider returned no content")
)

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer is a single-turn chat completion against one provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Provider() string
	Model() string
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	// CallTimeout bounds one provider request, retries included.
	CallTimeout time.Duration

	Retry   *retry.Config
	Breaker *circuitbreaker.Config
}

// guard wraps provider calls in the shared circuit breaker and retry policy.
type guard struct {
	provider    string
	model       string
	temperature float32
	maxTokens   int
	callTimeout time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func newGuard(cfg Config) guard {
	cbCfg := circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	}
	if cfg.Breaker != nil {
		cbCfg = *cfg.Breaker
	}

	retryCfg := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return guard{
		provider:    cfg.Provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		callTimeout: timeout,
		cb:          circuitbreaker.New("llm-"+cfg.Provider, cbCfg),
		retryConfig: retryCfg,
	}
}

func (g guard) Provider() string { return g.provider }
func (g guard) Model() string    { return g.model }

func (g guard) params(req CompletionRequest) (float32, int) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}
	return temperature, maxTokens
}

func (g guard) run(ctx context.Context, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			return op(ctx)
		})
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequests.WithLabelValues(g.provider, status).Inc()
	return err
}

func (g guard) recordUsage(u Usage) {
	metrics.LLMTokensUsed.WithLabelValues(g.model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(g.model, "completion").Add(float64(u.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.String("provider", g.provider),
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
	)
}
