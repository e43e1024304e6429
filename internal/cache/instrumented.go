package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrumented wraps a Cache, recording hit/miss/error counts per backend.
type Instrumented struct {
	delegate Cache
	lookups  metric.Int64Counter
	backend  attribute.KeyValue
}

// NewInstrumented wraps the delegate cache with lookup metrics. The backend
// name identifies the cache implementation in the recorded attributes.
func NewInstrumented(delegate Cache, backend string) *Instrumented {
	meter := otel.Meter("fbs-cms-adapter")

	lookups, _ := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache lookups partitioned by backend and result"),
	)

	return &Instrumented{
		delegate: delegate,
		lookups:  lookups,
		backend:  attribute.String("cache.backend", backend),
	}
}

func (i *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := i.delegate.Get(ctx, key)

	result := "hit"
	switch {
	case err != nil:
		result = "error"
	case !found:
		result = "miss"
	}

	i.lookups.Add(ctx, 1, metric.WithAttributes(
		i.backend,
		attribute.String("cache.result", result),
	))

	return value, found, err
}

func (i *Instrumented) Set(ctx context.Context, key string, value string) error {
	return i.delegate.Set(ctx, key, value)
}

func (i *Instrumented) Invalidate(ctx context.Context, key string) error {
	return i.delegate.Invalidate(ctx, key)
}

func (i *Instrumented) Close() error {
	return i.delegate.Close()
}
