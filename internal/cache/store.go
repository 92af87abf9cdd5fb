package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/energy-twins/pkg/redis"
)

// Store holds encoded cache entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store
type Memory struct {
	entries sync.Map
	now     func() time.Time
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Get returns a live entry; expired entries are dropped on read
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(memoryEntry)
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.entries.CompareAndDelete(key, v)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a copy of value
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries.Store(key, e)
	return nil
}

// Redis is a Store backed by a shared Redis instance
type Redis struct {
	client redis.Client
	logger *slog.Logger
}

// NewRedis wraps a Redis client as a Store
func NewRedis(client redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// Get returns the stored value; a missing key is a miss, not an error
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return []byte(val), true, nil
}

// Set writes value with ttl
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	r.logger.Debug("Cache entry stored", "key", key, "size", len(value), "ttl", ttl)
	return nil
}
