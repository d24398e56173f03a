package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type QueryStatus string

const (
	StatusPending    QueryStatus = "pending"
	StatusProcessing QueryStatus = "processing"
	StatusCompleted  QueryStatus = "completed"
	StatusFailed     QueryStatus = "failed"
)

func (s QueryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Query is never mutated after construction; copies handed to responses and
// sessions must not share the context map.
type Query struct {
	QueryID     string         `json:"query_id"`
	Text        string         `json:"text"`
	Timestamp   time.Time      `json:"timestamp"`
	UserContext map[string]any `json:"user_context"`
	SessionID   string         `json:"session_id"`
}

func NewQuery(id, text, sessionID string, now time.Time) Query {
	return Query{
		QueryID:     id,
		Text:        text,
		Timestamp:   now,
		UserContext: map[string]any{},
		SessionID:   sessionID,
	}
}

func (q Query) Clone() Query {
	out := q
	out.UserContext = make(map[string]any, len(q.UserContext))
	for k, v := range q.UserContext {
		out.UserContext[k] = v
	}
	return out
}

func (q Query) ToMap() map[string]any {
	ctx := q.UserContext
	if ctx == nil {
		ctx = map[string]any{}
	}
	return map[string]any{
		"query_id":     q.QueryID,
		"text":         q.Text,
		"timestamp":    q.Timestamp.Format(time.RFC3339Nano),
		"user_context": ctx,
		"session_id":   q.SessionID,
	}
}

// QueryFromMap is the inverse of ToMap. The timestamp may be an RFC 3339
// string or a time.Time.
func QueryFromMap(data map[string]any) (Query, error) {
	q := Query{UserContext: map[string]any{}}

	q.QueryID, _ = data["query_id"].(string)
	q.Text, _ = data["text"].(string)
	q.SessionID, _ = data["session_id"].(string)

	if ctx, ok := data["user_context"].(map[string]any); ok {
		for k, v := range ctx {
			q.UserContext[k] = v
		}
	}

	switch ts := data["timestamp"].(type) {
	case time.Time:
		q.Timestamp = ts
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Query{}, fmt.Errorf("failed to parse query timestamp: %w", err)
		}
		q.Timestamp = parsed
	case nil:
	default:
		return Query{}, fmt.Errorf("unsupported timestamp type %T", ts)
	}

	return q, nil
}

type Summary struct {
	SummaryID  string    `json:"summary_id"`
	Content    string    `json:"content"`
	SourceDocs []string  `json:"source_docs"`
	Confidence float64   `json:"confidence"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewSummary(id, content string, sourceDocs []string, confidence float64, now time.Time) *Summary {
	if sourceDocs == nil {
		sourceDocs = []string{}
	}
	return &Summary{
		SummaryID:  id,
		Content:    content,
		SourceDocs: sourceDocs,
		Confidence: clamp(confidence, 0, 1),
		Version:    1,
		CreatedAt:  now,
	}
}

// UpdateVersion marks a re-summarization made at now.
func (s *Summary) UpdateVersion(now time.Time) {
	s.Version++
	s.CreatedAt = now
}

type Feedback struct {
	FeedbackID           string    `json:"feedback_id"`
	SummaryID            string    `json:"summary_id"`
	Rating               int       `json:"rating"`
	Comments             string    `json:"comments"`
	Timestamp            time.Time `json:"timestamp"`
	ImprovementRequested bool      `json:"improvement_requested"`
	SpecificConcerns     []string  `json:"specific_concerns"`
}

func (f Feedback) ValidRating() bool {
	return f.Rating >= 1 && f.Rating <= 5
}

func (f Feedback) Clone() Feedback {
	out := f
	out.SpecificConcerns = append([]string{}, f.SpecificConcerns...)
	return out
}

func (f Feedback) ToMap() map[string]any {
	concerns := f.SpecificConcerns
	if concerns == nil {
		concerns = []string{}
	}
	return map[string]any{
		"feedback_id":           f.FeedbackID,
		"summary_id":            f.SummaryID,
		"rating":                f.Rating,
		"comments":              f.Comments,
		"timestamp":             f.Timestamp.Format(time.RFC3339Nano),
		"improvement_requested": f.ImprovementRequested,
		"specific_concerns":     concerns,
	}
}

type ReflectionReport struct {
	ReportID             string    `json:"report_id"`
	SummaryID            string    `json:"summary_id"`
	CoherenceScore       float64   `json:"coherence_score"`
	CompletenessScore    float64   `json:"completeness_score"`
	FactualityConfidence float64   `json:"factuality_confidence"`
	Suggestions          []string  `json:"suggestions"`
	RequiresRevision     bool      `json:"requires_revision"`
	EvaluatedAt          time.Time `json:"evaluated_at"`
}

// OverallScore is derived on every call and never stored.
func (r ReflectionReport) OverallScore() float64 {
	return (r.CoherenceScore + r.CompletenessScore + r.FactualityConfidence) / 3.0
}

func (r ReflectionReport) MarshalJSON() ([]byte, error) {
	type plain ReflectionReport
	suggestions := r.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	p := plain(r)
	p.Suggestions = suggestions
	return json.Marshal(struct {
		plain
		OverallScore float64 `json:"overall_score"`
	}{plain: p, OverallScore: r.OverallScore()})
}

type Response struct {
	ResponseID    string            `json:"response_id"`
	Query         Query             `json:"query"`
	Summary       *Summary          `json:"summary"`
	Reflection    *ReflectionReport `json:"reflection"`
	Status        QueryStatus       `json:"status"`
	ExecutionTime float64           `json:"execution_time"`
	AgentLogs     []string          `json:"agent_logs"`
	ErrorMessage  string            `json:"error_message"`
}

// NewResponse embeds a copy of query so later session changes cannot reach
// the returned value.
func NewResponse(id string, query Query) *Response {
	return &Response{
		ResponseID: id,
		Query:      query.Clone(),
		Status:     StatusPending,
		AgentLogs:  []string{},
	}
}

func (r *Response) IsSuccessful() bool {
	return r.Status == StatusCompleted && r.ErrorMessage == ""
}

func (r *Response) Fail(message string) *Response {
	r.Status = StatusFailed
	r.ErrorMessage = message
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
