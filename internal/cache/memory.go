package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is an in-memory cache implementation using otter. It is the
// default for single-instance deployments; separate adapter instances do
// not see each other's sessions and each log in on their own.
type Memory struct {
	cache   *otter.Cache[string, string]
	counter *stats.Counter
}

// NewMemory creates a new in-memory cache with the specified TTL and max
// size. A ttl of zero disables expiry.
func NewMemory(ttl time.Duration, maxSize int) (*Memory, error) {
	counter := stats.NewCounter()
	opts := &otter.Options[string, string]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
	}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryCreating[string, string](ttl)
	}

	return &Memory{
		cache:   otter.Must(opts),
		counter: counter,
	}, nil
}

// Get retrieves a value from the cache.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	entry, ok := m.cache.GetEntry(key)
	if !ok {
		return "", false, nil
	}

	return entry.Value, true, nil
}

// Set stores a value in the cache.
func (m *Memory) Set(ctx context.Context, key string, value string) error {
	m.cache.Set(key, value)
	return nil
}

// Invalidate removes a value from the cache.
func (m *Memory) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Close is a no-op for the in-memory cache.
func (m *Memory) Close() error {
	return nil
}
