package cache

import (
	"context"
)

// Cache is the key-value contract used for backend session keys and patron
// ids. Implementations are safe for concurrent use.
//
// Entries have no authoritative lifetime: a cached session key is valid
// until the backend rejects it with a 401, at which point the caller
// overwrites it. Implementations may still apply a TTL to bound their size.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value in the cache, overwriting any previous value.
	Set(ctx context.Context, key string, value string) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Namespaced returns a view of c whose keys are prefixed with the given
// namespace. Views share the underlying cache; Close on a view is a no-op,
// the owner of the wrapped cache closes it.
func Namespaced(c Cache, namespace string) Cache {
	return &namespaced{inner: c, prefix: namespace + ":"}
}

type namespaced struct {
	inner  Cache
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Invalidate(ctx context.Context, key string) error {
	return n.inner.Invalidate(ctx, n.prefix+key)
}

func (n *namespaced) Close() error {
	return nil
}
