package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/health-research/backend/pkg/circuitbreaker"
	"github.com/health-research/backend/pkg/retry"
)

func testConfig(baseURL string) Config {
	return Config{
		Provider:       ProviderOpenAI,
		Model:          "gpt-4o-mini",
		APIKey:         "test-key",
		BaseURL:        baseURL,
		EmbeddingModel: "text-embedding-3-small",
		MaxTokens:      128,
		CallTimeout:    5 * time.Second,
		Retry: &retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		Breaker: &circuitbreaker.Config{FailureThreshold: 10},
	}
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Parallel()

	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("Influenza is a respiratory illness."))
	}))
	defer srv.Close()

	c := NewOpenAIClient(testConfig(srv.URL))
	resp, err := c.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "You are a planner.",
		UserPrompt:   "What is the flu?",
	})
	require.NoError(t, err)
	require.Equal(t, "Influenza is a respiratory illness.", resp.Content)
	require.Equal(t, 10, resp.Usage.TotalTokens)
	require.Equal(t, "gpt-4o-mini", gotModel)
}

func TestOpenAIClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer srv.Close()

	c := NewOpenAIClient(testConfig(srv.URL))
	resp, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.EqualValues(t, 3, calls.Load())
}

func TestOpenAIClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(testConfig(srv.URL))
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestOpenAIClient_EmptyChoicesIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse("")
		resp["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient(testConfig(srv.URL))
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIClient_GenerateEmbedding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(testConfig(srv.URL))
	emb, err := c.GenerateEmbedding(context.Background(), "hand hygiene")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, emb)

	none, err := c.GenerateBatchEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestNew_ProviderSelection(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Provider: "fallback"})
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = New(Config{Provider: ""})
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = New(Config{Provider: ProviderOpenAI})
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New(Config{Provider: ProviderAnthropic})
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New(Config{Provider: "gemini", APIKey: "k"})
	require.Error(t, err)

	c, err = New(Config{Provider: "Ollama"})
	require.NoError(t, err)
	require.Equal(t, ProviderOllama, c.Provider())
	require.Equal(t, "llama3.2", c.Model())

	c, err = New(Config{Provider: ProviderMistral, APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, "mistral-small-latest", c.Model())

	c, err = New(Config{Provider: ProviderAnthropic, APIKey: "k", Model: "claude-x"})
	require.NoError(t, err)
	require.IsType(t, &AnthropicClient{}, c)
	require.Equal(t, "claude-x", c.Model())
}

func TestNewEmbedder(t *testing.T) {
	t.Parallel()

	_, err := NewEmbedder(Config{Provider: ProviderAnthropic, APIKey: "k"})
	require.ErrorContains(t, err, "does not serve embeddings")

	_, err = NewEmbedder(Config{Provider: ProviderOpenAI})
	require.ErrorIs(t, err, ErrMissingCredentials)

	e, err := NewEmbedder(Config{Provider: ProviderOllama, EmbeddingModel: "nomic-embed-text"})
	require.NoError(t, err)
	require.NotNil(t, e)
}
