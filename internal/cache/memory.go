package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const defaultTTL = 10 * time.Minute

// Memory is a process-local store. Entries expire ttl after they are written;
// reads do not extend them.
type Memory struct {
	cache *ttlcache.Cache[string, []byte]
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()

	return &Memory{cache: c}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := m.cache.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, value, ttlcache.DefaultTTL)
	return nil
}

func (m *Memory) Invalidate(context.Context) error {
	m.cache.DeleteAll()
	return nil
}

func (m *Memory) Len() int { return m.cache.Len() }

func (m *Memory) Name() string { return BackendMemory }

func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}
