package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderFallback  = "fallback"
	ProviderOpenAI    = "openai"
	ProviderMistral   = "mistral"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderMistral:   "mistral-small-latest",
	ProviderOllama:    "llama3.2",
	ProviderAnthropic: "claude-3-5-haiku-latest",
}

var defaultBaseURLs = map[string]string{
	ProviderMistral: "https://api.mistral.ai/v1",
	ProviderOllama:  "http://localhost:11434/v1",
}

// New builds the completer for cfg.Provider. It returns (nil, nil) for the
// fallback provider, and ErrMissingCredentials when a hosted provider has no
// API key, so callers can degrade to the templated pipeline.
func New(cfg Config) (Completer, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" || cfg.Provider == ProviderFallback {
		return nil, nil
	}

	if _, ok := defaultModels[cfg.Provider]; !ok {
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}

	switch cfg.Provider {
	case ProviderOllama:
		// Ollama ignores the key but the client still sends a bearer header.
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("failed to configure %s: %w", cfg.Provider, ErrMissingCredentials)
		}
		return NewAnthropicClient(cfg), nil
	default:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("failed to configure %s: %w", cfg.Provider, ErrMissingCredentials)
		}
		return NewOpenAIClient(cfg), nil
	}
}

// NewEmbedder returns the embedding client for cfg.Provider. Only the
// OpenAI-compatible providers serve embeddings.
func NewEmbedder(cfg Config) (Embedder, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch cfg.Provider {
	case ProviderOpenAI, ProviderMistral, ProviderOllama:
	default:
		return nil, fmt.Errorf("provider %q does not serve embeddings", cfg.Provider)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}
	if cfg.APIKey == "" {
		if cfg.Provider != ProviderOllama {
			return nil, fmt.Errorf("failed to configure %s embeddings: %w", cfg.Provider, ErrMissingCredentials)
		}
		cfg.APIKey = "ollama"
	}
	return NewOpenAIClient(cfg), nil
}
