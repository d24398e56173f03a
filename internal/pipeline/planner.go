package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/pkg/logger"
)

const maxTopics = 3

const plannerSystemPrompt = `You are an experienced research coordinator who knows how to structure health-related research tasks for other agents.

Break the user's health research question into a short, numbered list of clear subtasks:
- the key medical topic
- which trusted sources to consult
- what to extract (symptoms, causes, treatments, prevention)
- how to present the answer in plain language with a disclaimer that it is not medical advice

Return only the list.`

type PlannerAgent struct {
	base
}

func NewPlannerAgent(client llm.Completer) *PlannerAgent {
	return &PlannerAgent{base: base{name: "Planner Agent", role: "Task Planner", client: client}}
}

func (a *PlannerAgent) Process(ctx context.Context, query string) (string, error) {
	if a.client == nil {
		return planTemplate(query), nil
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   fmt.Sprintf("Plan research steps for the health query: '%s'", query),
		Temperature:  0.2,
		MaxTokens:    400,
	})
	if err != nil {
		return "", fmt.Errorf("failed to plan: %w", err)
	}
	return resp.Content, nil
}

func planTemplate(query string) string {
	topicLine := "- Identify key medical topic."
	if topics := extractTopics(query); len(topics) > 0 {
		topicLine = fmt.Sprintf("- Identify key medical topic (candidates: %s).", strings.Join(topics, ", "))
	}

	return fmt.Sprintf("Plan for query: '%s'.\n", query) +
		topicLine + "\n" +
		"- Search trusted health sources.\n" +
		"- Extract symptoms, causes, treatments.\n" +
		"- Summarize in plain language with disclaimers."
}

// extractTopics returns the first distinct nouns of the query, lowercased.
func extractTopics(query string) []string {
	doc, err := prose.NewDocument(query,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		logger.Debug("Topic extraction failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]bool)
	var topics []string
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		word := strings.ToLower(strings.Trim(tok.Text, ".,;:!?'\""))
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true
		topics = append(topics, word)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}
