package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/health-research/backend/internal/cache/redis"
	"github.com/health-research/backend/pkg/config"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store keeps serialized pipeline results keyed by query hash.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate drops every cached result, e.g. after the knowledge base changes.
	Invalidate(ctx context.Context) error
	Name() string
	Close() error
}

// New returns nil for the "none" backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second

	switch cfg.Cache.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		return NewMemory(ttl), nil
	case BackendRedis:
		c, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}
