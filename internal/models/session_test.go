package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_LastActivityNeverDecreases(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", t0)
	times := []time.Time{
		t0.Add(time.Minute),
		t0.Add(30 * time.Second),
		t0.Add(2 * time.Minute),
		t0,
	}

	prev := s.LastActivity
	for i, ts := range times {
		if i%2 == 0 {
			s.AddQuery(NewQuery("q", "text", "s1", ts), ts)
		} else {
			s.AddFeedback(Feedback{FeedbackID: "f", Rating: 3}, ts)
		}
		require.False(t, s.LastActivity.Before(prev))
		prev = s.LastActivity
	}
	require.Equal(t, t0.Add(2*time.Minute), s.LastActivity)
	require.Len(t, s.Queries, 2)
	require.Len(t, s.Feedback, 2)
}

func TestSession_IsExpired(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", t0)
	require.False(t, s.IsExpired(30*time.Minute, t0.Add(30*time.Minute)))
	require.True(t, s.IsExpired(30*time.Minute, t0.Add(30*time.Minute+time.Second)))
}

func TestSession_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", t0)
	s.AddQuery(NewQuery("q1", "first", "s1", t0), t0)

	c := s.Clone()
	c.Queries[0].Text = "changed"
	c.Queries = append(c.Queries, NewQuery("q2", "second", "s1", t0))

	require.Len(t, s.Queries, 1)
	require.Equal(t, "first", s.Queries[0].Text)
}

func TestSession_HistoryShape(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", t0)
	s.AddQuery(NewQuery("q1", "first", "s1", t0), t0)
	s.AddFeedback(Feedback{FeedbackID: "f1", SummaryID: "x", Rating: 4}, t0)

	raw, err := json.Marshal(s.History())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "s1", decoded["session_id"])
	require.Contains(t, decoded, "created_at")
	require.Contains(t, decoded, "last_activity")
	require.Len(t, decoded["queries"], 1)
	require.Len(t, decoded["feedback"], 1)
}

func TestEmptyHistory_OnlyHasLists(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(EmptyHistory())
	require.NoError(t, err)
	require.JSONEq(t, `{"queries":[],"feedback":[]}`, string(raw))
}

func TestDocument_Chunk(t *testing.T) {
	t.Parallel()

	doc := Document{
		DocID:    "doc1",
		Content:  string(make([]rune, 1200)),
		Metadata: map[string]any{"topic": "flu"},
		Source:   "seed",
	}

	chunks := doc.Chunk(500, 50)
	require.Len(t, chunks, 3)
	require.Equal(t, "doc1_chunk_0", chunks[0].DocID)
	require.Equal(t, "doc1_chunk_2", chunks[2].DocID)
	require.Equal(t, 1, chunks[1].Metadata["chunk_num"])
	require.Equal(t, "doc1", chunks[1].Metadata["parent_id"])
	require.Equal(t, "flu", chunks[1].Metadata["topic"])
	require.Len(t, []rune(chunks[2].Content), 300)
	require.NotContains(t, doc.Metadata, "chunk_num")
}

func TestDocument_ChunkShortAndEmpty(t *testing.T) {
	t.Parallel()

	require.Len(t, Document{DocID: "d", Content: "short"}.Chunk(500, 50), 1)
	require.Empty(t, Document{DocID: "d"}.Chunk(500, 50))
	require.Len(t, Document{DocID: "d", Content: "abcdef"}.Chunk(2, 5), 3)
}

func TestDocument_ChunkStopsAtEndOfText(t *testing.T) {
	t.Parallel()

	exact := Document{DocID: "d", Content: strings.Repeat("a", 500)}.Chunk(500, 50)
	require.Len(t, exact, 1)

	over := Document{DocID: "d", Content: strings.Repeat("a", 500) + "b"}.Chunk(500, 50)
	require.Len(t, over, 2)
	require.Len(t, over[1].Content, 51)
	require.True(t, strings.HasSuffix(over[1].Content, "b"))
}
