package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memo computes values at most once per key and keeps them in a Store.
// Concurrent misses for the same key share a single fill. The fill must be
// deterministic for its key, so a fill racing with another process writes the
// same value.
type Memo[T any] struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewMemo creates a memo over store. Values are encoded as JSON.
func NewMemo[T any](store Store, ttl time.Duration, logger *slog.Logger) *Memo[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memo[T]{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached value for key, calling fill on a miss. Store
// failures degrade to computing the value; only fill errors are returned.
func (m *Memo[T]) Get(ctx context.Context, key string, fill func(context.Context) (T, error)) (T, error) {
	if v, ok := m.lookup(ctx, key); ok {
		return v, nil
	}

	res, err, shared := m.group.Do(key, func() (any, error) {
		if v, ok := m.lookup(ctx, key); ok {
			return v, nil
		}
		v, err := fill(ctx)
		if err != nil {
			return v, err
		}
		m.save(ctx, key, v)
		return v, nil
	})
	if shared {
		m.logger.Debug("Cache fill shared", "key", key)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (m *Memo[T]) lookup(ctx context.Context, key string) (T, bool) {
	var v T
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Cache read failed", "key", key, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		m.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return v, false
	}
	return v, true
}

func (m *Memo[T]) save(ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := m.store.Set(ctx, key, data, m.ttl); err != nil {
		m.logger.Warn("Cache write failed", "key", key, "error", err)
	}
}
