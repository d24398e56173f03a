package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/health-research/backend/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.InitSchema(context.Background()))
	return c
}

func TestClient_RecordAndListResponses(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	ok := models.NewResponse("r1", models.NewQuery("q1", "What is the flu?", "s1", now))
	ok.Status = models.StatusCompleted
	ok.ExecutionTime = 0.25
	ok.AgentLogs = []string{"=== PLAN ==="}
	ok.Summary = models.NewSummary("sum1", "summary", []string{"doc1"}, 0.5, now)
	ok.Reflection = &models.ReflectionReport{CoherenceScore: 3, CompletenessScore: 4, FactualityConfidence: 2}

	failed := models.NewResponse("r2", models.NewQuery("q2", "Hi", "s1", now)).Fail("Invalid query. Please check length and content.")
	other := models.NewResponse("r3", models.NewQuery("q3", "Other session", "s2", now))

	require.NoError(t, c.RecordResponse(ctx, ok))
	require.NoError(t, c.RecordResponse(ctx, failed))
	require.NoError(t, c.RecordResponse(ctx, other))

	records, err := c.ListResponses(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "r1", records[0].ResponseID)
	require.Equal(t, "completed", records[0].Status)
	require.Equal(t, "=== PLAN ===", records[0].ResultText)
	require.Equal(t, "sum1", records[0].SummaryID)
	require.NotNil(t, records[0].OverallScore)
	require.InDelta(t, 3.0, *records[0].OverallScore, 1e-9)

	require.Equal(t, "r2", records[1].ResponseID)
	require.Equal(t, "failed", records[1].Status)
	require.Equal(t, "Invalid query. Please check length and content.", records[1].ErrorMessage)
	require.Nil(t, records[1].OverallScore)

	none, err := c.ListResponses(ctx, "unknown", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestClient_RecordFeedbackAndStats(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	stats, err := c.FeedbackStats(ctx)
	require.NoError(t, err)
	require.Equal(t, FeedbackStats{}, stats)

	require.NoError(t, c.RecordFeedback(ctx, "s1", models.Feedback{
		FeedbackID: "f1", SummaryID: "x", Rating: 5, Timestamp: time.Now(),
	}))
	require.NoError(t, c.RecordFeedback(ctx, "", models.Feedback{
		FeedbackID: "f2", SummaryID: "x", Rating: 2, Comments: "Needs more detail",
		ImprovementRequested: true, SpecificConcerns: []string{"depth"}, Timestamp: time.Now(),
	}))

	stats, err = c.FeedbackStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Count)
	require.InDelta(t, 3.5, stats.AverageRating, 1e-9)
	require.Equal(t, 1, stats.ImprovementRequested)
}

func TestClient_RatingConstraint(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	err := c.RecordFeedback(context.Background(), "s1", models.Feedback{FeedbackID: "bad", SummaryID: "x", Rating: 6})
	require.Error(t, err)
}

func TestClient_UpsertDocument(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	doc := models.Document{
		DocID:    "doc1_chunk_0",
		Content:  "Influenza is a contagious respiratory illness.",
		Metadata: map[string]any{"parent_id": "doc1", "chunk_num": 0},
		Source:   "seed",
	}
	require.NoError(t, c.UpsertDocument(ctx, doc))

	doc.Content = "Updated content."
	require.NoError(t, c.UpsertDocument(ctx, doc))
	require.NoError(t, c.UpsertDocument(ctx, models.Document{DocID: "doc2", Content: "Hand hygiene."}))

	n, err := c.CountDocuments(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
