package query

import "context"

// Fetch reads a typed value through the cache.
func Fetch[T any](cache *Cache, ctx context.Context, key Key, policy Policy, fetch func(ctx context.Context) (T, error)) (T, error) {
	raw, err := cache.Get(ctx, key, policy, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		if typed, ok := raw.(T); ok {
			// Stale value alongside the fetch error, when one exists.
			return typed, err
		}
		return zero, err
	}
	typed, ok := raw.(T)
	if !ok {
		var zero T
		return zero, err
	}
	return typed, nil
}

// Resource binds one query key, fetcher, and policy, mirroring the
// per-resource hook pattern: construct once, read many times.
type Resource[T any] struct {
	cache  *Cache
	key    Key
	policy Policy
	fetch  func(ctx context.Context) (T, error)
}

// NewResource constructs a typed resource accessor over the cache.
func NewResource[T any](cache *Cache, key Key, policy Policy, fetch func(ctx context.Context) (T, error)) *Resource[T] {
	return &Resource[T]{cache: cache, key: key, policy: policy, fetch: fetch}
}

// Get reads the resource through the cache.
func (resource *Resource[T]) Get(ctx context.Context) (T, error) {
	return Fetch(resource.cache, ctx, resource.key, resource.policy, resource.fetch)
}

// Invalidate marks the resource's entry stale.
func (resource *Resource[T]) Invalidate() {
	resource.cache.Invalidate(resource.key)
}

// Snapshot returns the entry state for the resource's key.
func (resource *Resource[T]) Snapshot() Snapshot {
	return resource.cache.SnapshotOf(resource.key)
}
