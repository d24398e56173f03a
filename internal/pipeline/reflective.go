package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

const (
	NoSummaryMessage = "Reflection: No summary provided to evaluate."

	completeLengthThreshold = 300
	revisionThreshold       = 3.0

	suggestDoubleCheck = "Double-check critical medical claims with primary sources."
	suggestExpand      = "Expand the summary with more detail from the retrieved sources."
)

const reflectiveSystemPrompt = `You review health summaries to flag potential gaps, ambiguity, or risky claims, and suggest improvements.

Score the summary from 0 to 5 on coherence, completeness and factuality confidence.
Return JSON only:
{"coherence": 4, "completeness": 3, "factuality": 4, "suggestions": ["..."], "requires_revision": false, "report": "short reflection report with recommendations"}`

type ReflectiveAgent struct {
	base
	clock clockwork.Clock
}

func NewReflectiveAgent(client llm.Completer, clock clockwork.Clock) *ReflectiveAgent {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReflectiveAgent{
		base:  base{name: "Reflective Agent", role: "Quality Reviewer", client: client},
		clock: clock,
	}
}

func (a *ReflectiveAgent) Process(ctx context.Context, summary string) (string, error) {
	text, _, err := a.Reflect(ctx, summary)
	return text, err
}

// Reflect evaluates summary and returns the report text and its scores.
func (a *ReflectiveAgent) Reflect(ctx context.Context, summary string) (string, models.ReflectionReport, error) {
	if strings.TrimSpace(summary) == "" {
		report := a.newReport(0, 0, 0)
		report.RequiresRevision = true
		return NoSummaryMessage, report, nil
	}

	if a.client == nil {
		text, report := a.heuristic(summary)
		return text, report, nil
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reflectiveSystemPrompt,
		UserPrompt:   fmt.Sprintf("Evaluate this health summary:\n\n%s", summary),
		Temperature:  0.1,
		MaxTokens:    500,
	})
	if err != nil {
		return "", models.ReflectionReport{}, fmt.Errorf("failed to reflect: %w", err)
	}

	scores, ok := parseScores(resp.Content)
	if !ok {
		logger.Debug("Reflection scores not parseable, using heuristic scores")
		_, report := a.heuristic(summary)
		return resp.Content, report, nil
	}

	report := a.newReport(scores.Coherence, scores.Completeness, scores.Factuality)
	report.Suggestions = scores.Suggestions
	report.RequiresRevision = scores.RequiresRevision || report.OverallScore() < revisionThreshold

	text := scores.Report
	if text == "" {
		text = resp.Content
	}
	return text, report, nil
}

// heuristic scores by length only: coherence is assumed moderate and
// factuality depends on the sources, which are not inspected.
func (a *ReflectiveAgent) heuristic(summary string) (string, models.ReflectionReport) {
	lengthScore := 2.0
	if utf8.RuneCountInString(summary) > completeLengthThreshold {
		lengthScore = 4.0
	}
	completeness := "probably reasonably complete"
	if lengthScore < 3 {
		completeness = "likely incomplete"
	}

	text := "Reflection Report (fallback mode):\n" +
		fmt.Sprintf("- Approx length-based completeness: %s.\n", completeness) +
		"- Coherence: assumed moderate (manual check still needed).\n" +
		"- Factuality: depends on source quality (RAG inputs).\n" +
		"Recommendation: " + suggestDoubleCheck

	report := a.newReport(3.0, lengthScore, 2.5)
	if lengthScore < 3 {
		report.Suggestions = append(report.Suggestions, suggestExpand)
		report.RequiresRevision = true
	}
	report.Suggestions = append(report.Suggestions, suggestDoubleCheck)

	return text, report
}

func (a *ReflectiveAgent) newReport(coherence, completeness, factuality float64) models.ReflectionReport {
	return models.ReflectionReport{
		ReportID:             uuid.NewString(),
		CoherenceScore:       coherence,
		CompletenessScore:    completeness,
		FactualityConfidence: factuality,
		Suggestions:          []string{},
		EvaluatedAt:          a.clock.Now(),
	}
}

type reflectionScores struct {
	Coherence        float64  `json:"coherence"`
	Completeness     float64  `json:"completeness"`
	Factuality       float64  `json:"factuality"`
	Suggestions      []string `json:"suggestions"`
	RequiresRevision bool     `json:"requires_revision"`
	Report           string   `json:"report"`
}

// parseScores reads the first JSON object in content, tolerating code fences
// and prose around it.
func parseScores(content string) (reflectionScores, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return reflectionScores{}, false
	}

	var s reflectionScores
	if err := json.Unmarshal([]byte(content[start:end+1]), &s); err != nil {
		logger.Debug("Failed to decode reflection scores", zap.Error(err))
		return reflectionScores{}, false
	}

	s.Coherence = clampScore(s.Coherence)
	s.Completeness = clampScore(s.Completeness)
	s.Factuality = clampScore(s.Factuality)
	if s.Suggestions == nil {
		s.Suggestions = []string{}
	}
	return s, true
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 5:
		return 5
	default:
		return v
	}
}
