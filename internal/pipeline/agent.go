package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/health-research/backend/internal/llm"
)

const (
	modeLLM      = "llm"
	modeFallback = "fallback"
)

// Agent is one stage of the research pipeline.
type Agent interface {
	Name() string
	Role() string
	Process(ctx context.Context, input string) (string, error)
}

// base carries what every agent shares. A nil completer selects the
// templated fallback behaviour.
type base struct {
	name   string
	role   string
	client llm.Completer
}

func (b base) Name() string { return b.name }
func (b base) Role() string { return b.role }

func (b base) mode() string {
	if b.client == nil {
		return modeFallback
	}
	return modeLLM
}

func (b base) String() string {
	return fmt.Sprintf("%s(role=%s, mode=%s)", b.name, b.role, b.mode())
}

// ActivityLog collects timestamped "[ts] [agent] message" lines for one run.
type ActivityLog struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries []string
}

func NewActivityLog(clock clockwork.Clock) *ActivityLog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ActivityLog{clock: clock}
}

func (l *ActivityLog) Record(agent, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.clock.Now().Format(time.RFC3339Nano)
	l.entries = append(l.entries, fmt.Sprintf("[%s] [%s] %s", ts, agent, message))
}

func (l *ActivityLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.entries...)
}
