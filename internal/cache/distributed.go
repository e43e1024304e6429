package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Distributed implements Cache using Valkey, letting a fleet of adapter
// instances share backend sessions and patron ids.
type Distributed struct {
	client valkey.Client
	ttl    time.Duration
	sealer Sealer
}

// NewDistributed creates a new Valkey-backed cache. A ttl of zero stores
// entries without expiry, which is the normal mode: stale session keys are
// detected via backend 401s and overwritten. A nil sealer stores values in
// plaintext.
func NewDistributed(valkeyClient valkey.Client, ttl time.Duration, sealer Sealer) (*Distributed, error) {
	if sealer == nil {
		sealer = PlainSealer{}
	}
	return &Distributed{
		client: valkeyClient,
		ttl:    ttl,
		sealer: sealer,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the value, whether it was found, and any error.
func (d *Distributed) Get(ctx context.Context, key string) (string, bool, error) {
	storageKey := d.sealer.StorageKey(key)

	cmd := d.client.B().Get().Key(storageKey).Build()
	result := d.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get cached value: %w", err)
	}

	val, err := result.ToString()
	if err != nil {
		return "", false, fmt.Errorf("failed to convert cached value to string: %w", err)
	}

	opened, err := d.sealer.Open(val, key)
	if err != nil {
		// Best-effort invalidation of the corrupted entry.
		_ = d.client.Do(ctx, d.client.B().Del().Key(storageKey).Build()).Error()

		return "", false, fmt.Errorf("cache unseal failure for key %q: %w", key, err)
	}

	return string(opened), true, nil
}

// Set stores a value in the cache, with the configured TTL if one is set.
func (d *Distributed) Set(ctx context.Context, key string, value string) error {
	sealed, err := d.sealer.Seal([]byte(value), key)
	if err != nil {
		return fmt.Errorf("failed to seal cached value: %w", err)
	}

	storageKey := d.sealer.StorageKey(key)

	var cmd valkey.Completed
	if d.ttl > 0 {
		cmd = d.client.B().Set().Key(storageKey).Value(sealed).ExSeconds(int64(d.ttl.Seconds())).Build()
	} else {
		cmd = d.client.B().Set().Key(storageKey).Value(sealed).Build()
	}

	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cached value: %w", err)
	}
	return nil
}

// Invalidate removes a value from the cache.
func (d *Distributed) Invalidate(ctx context.Context, key string) error {
	cmd := d.client.B().Del().Key(d.sealer.StorageKey(key)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Close releases the cache client.
func (d *Distributed) Close() error {
	d.client.Close()
	return nil
}
