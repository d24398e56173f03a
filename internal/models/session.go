package models

import "time"

type Session struct {
	SessionID    string
	Queries      []Query
	Feedback     []Feedback
	CreatedAt    time.Time
	LastActivity time.Time
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		SessionID:    id,
		Queries:      []Query{},
		Feedback:     []Feedback{},
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (s *Session) AddQuery(q Query, now time.Time) {
	s.Queries = append(s.Queries, q.Clone())
	s.touch(now)
}

func (s *Session) AddFeedback(f Feedback, now time.Time) {
	s.Feedback = append(s.Feedback, f.Clone())
	s.touch(now)
}

// touch never moves LastActivity backwards, even if the clock does.
func (s *Session) touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

func (s *Session) IsExpired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > timeout
}

func (s *Session) Clone() Session {
	out := *s
	out.Queries = make([]Query, len(s.Queries))
	for i, q := range s.Queries {
		out.Queries[i] = q.Clone()
	}
	out.Feedback = make([]Feedback, len(s.Feedback))
	for i, f := range s.Feedback {
		out.Feedback[i] = f.Clone()
	}
	return out
}

// History is the transport view of a session. Unknown sessions render as the
// empty shape with only the two lists.
type History struct {
	SessionID    string           `json:"session_id,omitempty"`
	CreatedAt    string           `json:"created_at,omitempty"`
	LastActivity string           `json:"last_activity,omitempty"`
	Queries      []map[string]any `json:"queries"`
	Feedback     []map[string]any `json:"feedback"`
}

func EmptyHistory() History {
	return History{
		Queries:  []map[string]any{},
		Feedback: []map[string]any{},
	}
}

func (s *Session) History() History {
	h := History{
		SessionID:    s.SessionID,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339Nano),
		LastActivity: s.LastActivity.Format(time.RFC3339Nano),
		Queries:      make([]map[string]any, 0, len(s.Queries)),
		Feedback:     make([]map[string]any, 0, len(s.Feedback)),
	}
	for _, q := range s.Queries {
		h.Queries = append(h.Queries, q.ToMap())
	}
	for _, f := range s.Feedback {
		h.Feedback = append(h.Feedback, f.ToMap())
	}
	return h
}
