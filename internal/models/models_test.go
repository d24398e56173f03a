package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestQuery_MapRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQuery("test_001", "What are the symptoms of diabetes?", "session_123", t0)
	q.UserContext["locale"] = "en"

	got, err := QueryFromMap(q.ToMap())
	require.NoError(t, err)
	require.Equal(t, q.QueryID, got.QueryID)
	require.Equal(t, q.Text, got.Text)
	require.Equal(t, q.SessionID, got.SessionID)
	require.True(t, q.Timestamp.Equal(got.Timestamp))
	require.Equal(t, "en", got.UserContext["locale"])
}

func TestQuery_FromMapRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	_, err := QueryFromMap(map[string]any{"query_id": "q", "timestamp": "yesterday"})
	require.Error(t, err)
}

func TestQuery_CloneDoesNotShareContext(t *testing.T) {
	t.Parallel()

	q := NewQuery("q", "text", "s", t0)
	c := q.Clone()
	c.UserContext["x"] = 1
	require.NotContains(t, q.UserContext, "x")
}

func TestSummary_UpdateVersion(t *testing.T) {
	t.Parallel()

	s := NewSummary("sum_001", "Diabetes symptoms include frequent urination...", nil, 0.85, t0)
	require.Equal(t, 1, s.Version)
	require.NotNil(t, s.SourceDocs)

	later := t0.Add(5 * time.Minute)
	s.UpdateVersion(later)
	require.Equal(t, 2, s.Version)
	require.Equal(t, later, s.CreatedAt)

	s.UpdateVersion(later.Add(time.Minute))
	require.Equal(t, 3, s.Version)
}

func TestSummary_ConfidenceIsClamped(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, NewSummary("a", "b", nil, 1.7, t0).Confidence)
	require.Equal(t, 0.0, NewSummary("a", "b", nil, -0.2, t0).Confidence)
}

func TestFeedback_ValidRating(t *testing.T) {
	t.Parallel()

	for r := -1; r <= 7; r++ {
		f := Feedback{Rating: r}
		assert.Equal(t, r >= 1 && r <= 5, f.ValidRating(), "rating %d", r)
	}
}

func TestReflectionReport_OverallScoreIsRecomputed(t *testing.T) {
	t.Parallel()

	r := ReflectionReport{
		ReportID:             "rep_001",
		SummaryID:            "sum_001",
		CoherenceScore:       4.2,
		CompletenessScore:    3.8,
		FactualityConfidence: 4.5,
	}
	require.InDelta(t, 4.1666, r.OverallScore(), 0.001)

	r.CoherenceScore = 1.0
	require.InDelta(t, 3.1, r.OverallScore(), 0.001)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.InDelta(t, 3.1, decoded["overall_score"], 0.001)
	require.Equal(t, "rep_001", decoded["report_id"])
	require.Equal(t, []any{}, decoded["suggestions"])
}

func TestResponse_SerializationShape(t *testing.T) {
	t.Parallel()

	q := NewQuery("q1", "What is influenza?", "s1", t0)
	resp := NewResponse("r1", q)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for _, key := range []string{"response_id", "query", "summary", "reflection", "status", "execution_time", "agent_logs", "error_message"} {
		require.Contains(t, decoded, key)
	}
	require.Nil(t, decoded["summary"])
	require.Nil(t, decoded["reflection"])
	require.Equal(t, "pending", decoded["status"])
	require.Equal(t, []any{}, decoded["agent_logs"])

	query := decoded["query"].(map[string]any)
	for _, key := range []string{"query_id", "text", "timestamp", "user_context", "session_id"} {
		require.Contains(t, query, key)
	}
}

func TestResponse_IsSuccessful(t *testing.T) {
	t.Parallel()

	resp := NewResponse("r", Query{})
	require.False(t, resp.IsSuccessful())

	resp.Status = StatusCompleted
	require.True(t, resp.IsSuccessful())

	resp.ErrorMessage = "late failure"
	require.False(t, resp.IsSuccessful())

	resp.Fail("boom")
	require.Equal(t, StatusFailed, resp.Status)
	require.False(t, resp.IsSuccessful())
}

func TestResponse_QueryIsASnapshot(t *testing.T) {
	t.Parallel()

	q := NewQuery("q1", "text", "s1", t0)
	resp := NewResponse("r1", q)
	q.UserContext["added"] = true
	require.NotContains(t, resp.Query.UserContext, "added")
}

func TestQueryStatus_Valid(t *testing.T) {
	t.Parallel()

	require.True(t, StatusProcessing.Valid())
	require.False(t, QueryStatus("done").Valid())
}
