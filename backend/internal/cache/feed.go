package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Feed caches filtered list reads of one namespace. Reads are best effort:
// any Redis failure falls back to the loader. A nil Feed or one without a
// client always loads.
type Feed[T any] struct {
	client    *Client
	namespace string
	ttl       time.Duration
}

// NewFeed creates a feed cache; client may be nil
func NewFeed[T any](client *Client, namespace string, ttl time.Duration) *Feed[T] {
	return &Feed[T]{client: client, namespace: namespace, ttl: ttl}
}

// Get returns the cached page for filter or loads and stores it
func (f *Feed[T]) Get(ctx context.Context, filter interface{}, load func(context.Context) ([]T, error)) ([]T, error) {
	if f == nil || f.client == nil {
		return load(ctx)
	}
	log := f.client.logger.With(zap.String("namespace", f.namespace))

	version, err := f.client.Version(ctx, f.namespace)
	if err != nil {
		log.Warn("Feed cache unavailable", zap.Error(err))
		return load(ctx)
	}
	key, err := FeedKey(f.namespace, version, filter)
	if err != nil {
		return load(ctx)
	}

	var cached []T
	if hit, err := f.client.GetJSON(ctx, key, &cached); err != nil {
		log.Warn("Feed cache read failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.client.SetJSON(ctx, key, items, f.ttl); err != nil {
		log.Warn("Feed cache write failed", zap.Error(err))
	}
	return items, nil
}

// Invalidate drops every cached page of the namespace
func (f *Feed[T]) Invalidate(ctx context.Context) {
	if f == nil || f.client == nil {
		return
	}
	if err := f.client.Bump(ctx, f.namespace); err != nil {
		f.client.logger.Warn("Feed cache invalidation failed",
			zap.String("namespace", f.namespace),
			zap.Error(err))
	}
}
