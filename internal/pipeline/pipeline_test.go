package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/internal/retrieval"
)

type fakeCompleter struct {
	calls   atomic.Int32
	respond func(req llm.CompletionRequest) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

func (f *fakeCompleter) Provider() string { return "fake" }
func (f *fakeCompleter) Model() string    { return "fake-model" }

type fakeRetriever struct {
	passages []retrieval.Passage
	err      error
}

func (f fakeRetriever) Search(context.Context, string, int) ([]retrieval.Passage, error) {
	return f.passages, f.err
}
func (f fakeRetriever) Index(context.Context, []models.Document) error { return nil }
func (f fakeRetriever) Count(context.Context) (int, error)             { return len(f.passages), nil }
func (f fakeRetriever) Backend() string                                { return "fake" }
func (f fakeRetriever) Close() error                                   { return nil }

var fluPassages = []retrieval.Passage{
	{DocID: "doc1", Content: "Influenza (flu) is a contagious respiratory illness caused by influenza viruses."},
	{DocID: "doc3", Content: "Vaccination is a safe and effective way to prevent many serious diseases."},
}

func scriptedLLM() *fakeCompleter {
	return &fakeCompleter{respond: func(req llm.CompletionRequest) (string, error) {
		switch {
		case strings.HasPrefix(req.UserPrompt, "Plan research steps"):
			return "1. Identify influenza as the topic.", nil
		case strings.HasPrefix(req.UserPrompt, "Question:"):
			return "[doc1] Influenza (flu) is a contagious respiratory illness.", nil
		case strings.HasPrefix(req.UserPrompt, "Summarize"):
			return "Influenza is a contagious respiratory illness. This is not medical advice.", nil
		case strings.HasPrefix(req.UserPrompt, "Evaluate"):
			return "```json\n{\"coherence\": 4, \"completeness\": 3.5, \"factuality\": 4.5, \"suggestions\": [\"Mention treatment options.\"], \"requires_revision\": false, \"report\": \"Clear and accurate.\"}\n```", nil
		}
		return "", errors.New("unexpected prompt")
	}}
}

func TestPipeline_EmptyQuery(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	for _, q := range []string{"", "   ", "\n\t"} {
		res, err := p.Run(context.Background(), q)
		require.NoError(t, err)
		require.Equal(t, TextResult{Text: EmptyQueryMessage}, res)
	}
}

func TestPipeline_FallbackWithoutDocuments(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	p := New(Config{Clock: clk})
	require.Equal(t, modeFallback, p.Mode())

	res, err := p.Run(context.Background(), "What are the symptoms of diabetes?")
	require.NoError(t, err)

	sr, ok := res.(*StructuredResult)
	require.True(t, ok)
	require.False(t, sr.Fallback)

	require.True(t, strings.HasPrefix(sr.Raw, "=== PLAN ===\nPlan for query: 'What are the symptoms of diabetes?'.\n"))
	require.Contains(t, sr.Raw, "- Search trusted health sources.\n- Extract symptoms, causes, treatments.\n- Summarize in plain language with disclaimers.")
	require.Contains(t, sr.Raw, "\n\n=== RETRIEVED CONTENT ===\n"+NoDocumentsMessage+"\n\n=== SUMMARY ===\n")
	require.Contains(t, sr.Raw, "Summary (fallback mode):\nThis content discusses health-related information gathered from the RAG store.\nKey excerpt:\n"+NoDocumentsMessage)
	require.Contains(t, sr.Raw, "- Approx length-based completeness: likely incomplete.")

	require.NotNil(t, sr.Summary)
	require.Empty(t, sr.Summary.SourceDocs)
	require.Zero(t, sr.Summary.Confidence)
	require.Equal(t, 1, sr.Summary.Version)
	require.Equal(t, clk.Now(), sr.Summary.CreatedAt)

	require.NotNil(t, sr.Reflection)
	require.Equal(t, sr.Summary.SummaryID, sr.Reflection.SummaryID)
	require.True(t, sr.Reflection.RequiresRevision)
	require.Equal(t, sr.Output, strings.SplitN(sr.Raw, "=== REFLECTION ===\n", 2)[1])

	require.Len(t, sr.Logs, 8)
	require.Contains(t, sr.Logs[0], "[Planner Agent] Executing task")
	require.Contains(t, sr.Logs[7], "[Reflective Agent] Task completed successfully")
}

func TestPipeline_FallbackWithDocuments(t *testing.T) {
	t.Parallel()

	p := New(Config{Retriever: fakeRetriever{passages: fluPassages}, TopK: 4})

	res, err := p.Run(context.Background(), "What is the flu?")
	require.NoError(t, err)
	sr := res.(*StructuredResult)

	require.Contains(t, sr.Raw, "=== RETRIEVED CONTENT ===\nRetrieved 2 document chunks:\n\n"+fluPassages[0].Content+"\n\n"+fluPassages[1].Content)
	require.Equal(t, []string{"doc1", "doc3"}, sr.Summary.SourceDocs)
	require.InDelta(t, 0.5, sr.Summary.Confidence, 1e-9)
}

func TestPipeline_FallbackSurvivesRetrievalErrors(t *testing.T) {
	t.Parallel()

	p := New(Config{Retriever: fakeRetriever{err: errors.New("index offline")}})

	res, err := p.Run(context.Background(), "What is the flu?")
	require.NoError(t, err)
	require.Contains(t, Text(res), NoDocumentsMessage)
}

func TestPipeline_LLMStages(t *testing.T) {
	t.Parallel()

	client := scriptedLLM()
	p := New(Config{Completer: client, Retriever: fakeRetriever{passages: fluPassages}})
	require.Equal(t, modeLLM, p.Mode())

	res, err := p.Run(context.Background(), "What is the flu?")
	require.NoError(t, err)
	sr := res.(*StructuredResult)

	require.False(t, sr.Fallback)
	require.EqualValues(t, 4, client.calls.Load())
	require.Contains(t, sr.Raw, "=== PLAN ===\n1. Identify influenza as the topic.")
	require.Contains(t, sr.Raw, "=== RETRIEVED CONTENT ===\n[doc1] Influenza")
	require.Equal(t, "Clear and accurate.", sr.Output)

	require.Equal(t, 4.0, sr.Reflection.CoherenceScore)
	require.Equal(t, 3.5, sr.Reflection.CompletenessScore)
	require.Equal(t, 4.5, sr.Reflection.FactualityConfidence)
	require.InDelta(t, 4.0, sr.Reflection.OverallScore(), 1e-9)
	require.False(t, sr.Reflection.RequiresRevision)
	require.Equal(t, []string{"Mention treatment options."}, sr.Reflection.Suggestions)
}

func TestPipeline_LLMFailureFallsBackWithHeader(t *testing.T) {
	t.Parallel()

	client := &fakeCompleter{respond: func(llm.CompletionRequest) (string, error) {
		return "", errors.New("provider unavailable")
	}}
	p := New(Config{Completer: client})

	res, err := p.Run(context.Background(), "What is the flu?")
	require.NoError(t, err)
	sr := res.(*StructuredResult)

	require.True(t, sr.Fallback)
	require.True(t, strings.HasPrefix(sr.Raw, "Language-model pipeline execution failed or is not fully configured.\nReason: "))
	require.Contains(t, sr.Raw, "provider unavailable")
	require.Contains(t, sr.Raw, "Falling back to simplified pipeline:\n\n=== PLAN ===\nPlan for query: 'What is the flu?'.")
	require.EqualValues(t, 1, client.calls.Load())
}

func TestPipeline_LLMCancelledContextIsAnError(t *testing.T) {
	t.Parallel()

	p := New(Config{Completer: scriptedLLM()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "What is the flu?")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_AgentsFollowMode(t *testing.T) {
	t.Parallel()

	agents := New(Config{}).Agents()
	require.Len(t, agents, 4)
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name()
	}
	require.Equal(t, []string{"Planner Agent", "Search Agent", "Summarization Agent", "Reflective Agent"}, names)
}

func TestText_Extraction(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Text(nil))
	require.Equal(t, "plain", Text(TextResult{Text: "plain"}))
	require.Equal(t, "raw", Text(&StructuredResult{Raw: "raw", Output: "out"}))
	require.Equal(t, "out", Text(&StructuredResult{Output: "out"}))
	require.NotEmpty(t, Text(&StructuredResult{Fallback: true}))

	var nilStructured *StructuredResult
	require.Equal(t, "", Text(nilStructured))
}

func TestActivityLog_Format(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	l := NewActivityLog(clk)
	l.Record("Search Agent", "Executing task")

	require.Equal(t, []string{"[2024-01-02T03:04:05Z] [Search Agent] Executing task"}, l.Entries())
}
