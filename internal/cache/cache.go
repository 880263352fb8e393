// Package cache holds read-model caches for list and summary views. Writers
// invalidate by key prefix after a successful mutation.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Key prefixes shared by readers and writers.
const (
	PrefixContracts       = "contracts:"
	PrefixUnits           = "units:"
	PrefixOwnersByUnit    = "owners:by-unit:"
	PrefixPaymentsList    = "payments:list:"
	PrefixPaymentsSummary = "payments:summary:"
)

// Cache is a byte-oriented key/value cache with prefix invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// InvalidateAll drops every given prefix, returning the first error.
func InvalidateAll(ctx context.Context, c Cache, prefixes ...string) error {
	var first error
	for _, p := range prefixes {
		if err := c.InvalidatePrefix(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Remember returns the cached JSON value for key, or calls load and caches
// its result. Cache failures fall through to load.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if raw, ok, err := c.Get(ctx, key); err == nil && ok {
		var v T
		if json.Unmarshal(raw, &v) == nil {
			return v, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return v, nil
}
