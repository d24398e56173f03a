package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/cache"
	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/pkg/logger"
	"github.com/health-research/backend/pkg/utils"
)

// CachedRunner serves repeated questions from a result cache. Runs that fell
// back after an LLM failure are not cached.
type CachedRunner struct {
	next  Runner
	store cache.Store
}

// WithCache wraps next; a nil store returns next unchanged.
func WithCache(next Runner, store cache.Store) Runner {
	if store == nil {
		return next
	}
	return &CachedRunner{next: next, store: store}
}

func (r *CachedRunner) Run(ctx context.Context, query string) (Result, error) {
	key := utils.HashQuery(query)

	if res, ok := r.lookup(ctx, key); ok {
		metrics.CacheHits.WithLabelValues(r.store.Name()).Inc()
		return res, nil
	}
	metrics.CacheMisses.WithLabelValues(r.store.Name()).Inc()

	res, err := r.next.Run(ctx, query)
	if err != nil {
		return nil, err
	}

	sr, ok := res.(*StructuredResult)
	if !ok || sr.Fallback {
		return res, nil
	}

	data, err := json.Marshal(sr)
	if err != nil {
		logger.Warn("Failed to encode result for cache", zap.Error(err))
		return res, nil
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		logger.Warn("Failed to cache result", zap.Error(err))
	}
	return res, nil
}

// lookup decodes a cached result and gives it fresh identifiers so feedback
// on a cached answer does not collide with the original. The stored activity
// trace belongs to the first run and is replaced.
func (r *CachedRunner) lookup(ctx context.Context, key string) (*StructuredResult, bool) {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		logger.Warn("Result cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var sr StructuredResult
	if err := json.Unmarshal(data, &sr); err != nil {
		logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	if sr.Summary != nil {
		sr.Summary.SummaryID = uuid.NewString()
		if sr.Reflection != nil {
			sr.Reflection.SummaryID = sr.Summary.SummaryID
		}
	}
	if sr.Reflection != nil {
		sr.Reflection.ReportID = uuid.NewString()
	}

	activity := NewActivityLog(nil)
	activity.Record("cache", "Served cached result")
	sr.Logs = activity.Entries()
	return &sr, true
}
