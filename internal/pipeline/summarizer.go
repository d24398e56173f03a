package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/health-research/backend/internal/llm"
)

const (
	NoContentMessage = "No content available to summarize."

	excerptLength = 800
)

const summarizerSystemPrompt = `You are skilled at turning dense medical information into accessible research summaries for analysts.

Summarize the provided health information in clear, concise language. Use only the provided content. End with a short disclaimer that this is not medical advice.`

type SummarizerAgent struct {
	base
}

func NewSummarizerAgent(client llm.Completer) *SummarizerAgent {
	return &SummarizerAgent{base: base{name: "Summarization Agent", role: "Health Research Summarizer", client: client}}
}

func (a *SummarizerAgent) Process(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return NoContentMessage, nil
	}

	if a.client == nil {
		return "Summary (fallback mode):\n" +
			"This content discusses health-related information gathered from the RAG store.\n" +
			"Key excerpt:\n" + excerpt(content, excerptLength), nil
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarizerSystemPrompt,
		UserPrompt:   fmt.Sprintf("Summarize this retrieved health information:\n\n%s", content),
		Temperature:  0.3,
		MaxTokens:    800,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	return resp.Content, nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
