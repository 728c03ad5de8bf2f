// Package settings is a small key-value store for per-group state that must
// survive restarts: sync cursors and publish progress.
package settings

import "context"

// Repository stores opaque values by key. Get returns (nil, nil) for a
// missing key so callers can treat absence as "from the beginning".
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	List(ctx context.Context) (map[string][]byte, error)
}
