package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

const DefaultTimeout = 30 * time.Minute

type Config struct {
	// Timeout is the inactivity window after which a session is evicted.
	Timeout time.Duration
	Clock   clockwork.Clock
}

// Store is the only owner of session records. Callers receive snapshots.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	timeout  time.Duration
	clock    clockwork.Clock
}

func NewStore(cfg Config) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Store{
		sessions: make(map[string]*models.Session),
		timeout:  cfg.Timeout,
		clock:    cfg.Clock,
	}
}

func (s *Store) Timeout() time.Duration { return s.timeout }

func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions[id] = models.NewSession(id, s.clock.Now())

	logger.Debug("Session created", zap.String("session_id", id))
	return id
}

// GetSession returns a copy of a live session. An expired session is evicted
// and reported as absent.
func (s *Store) GetSession(id string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(id)
	if sess == nil {
		return models.Session{}, false
	}
	return sess.Clone(), true
}

// UpdateSession appends query and/or feedback to a live session. It returns
// false, changing nothing, when the session is absent or expired.
func (s *Store) UpdateSession(id string, query *models.Query, feedback *models.Feedback) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(id)
	if sess == nil {
		return false
	}

	now := s.clock.Now()
	if query != nil {
		sess.AddQuery(*query, now)
	}
	if feedback != nil {
		sess.AddFeedback(*feedback, now)
	}
	return true
}

func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cleanupLocked()
}

// ActiveSessionCount sweeps before counting so stale sessions are never
// included.
func (s *Store) ActiveSessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked()
	return len(s.sessions)
}

func (s *Store) SessionHistory(id string) models.History {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(id)
	if sess == nil {
		return models.EmptyHistory()
	}
	return sess.History()
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			removed := s.CleanupExpired()
			active := s.ActiveSessionCount()
			metrics.ActiveSessions.Set(float64(active))
			if removed > 0 {
				logger.Info("Expired sessions removed",
					zap.Int("removed", removed),
					zap.Int("active", active),
				)
			}
		}
	}
}

func (s *Store) liveLocked(id string) *models.Session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if sess.IsExpired(s.timeout, s.clock.Now()) {
		delete(s.sessions, id)
		metrics.SessionsExpired.Inc()
		return nil
	}
	return sess
}

func (s *Store) cleanupLocked() int {
	now := s.clock.Now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.IsExpired(s.timeout, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.SessionsExpired.Add(float64(removed))
	}
	return removed
}
