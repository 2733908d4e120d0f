// Package storage defines the keyed-store capability the matching core is
// written against: logical groups of keys with per-key atomic writes. No
// multi-key transactions are assumed; callers keep every write idempotent.
package storage

import "context"

// Store is the persistence boundary. Values are JSON-encoded by the
// implementation; Get reports whether the key existed.
type Store interface {
	Get(ctx context.Context, group, key string, out any) (bool, error)
	Set(ctx context.Context, group, key string, v any) error
	Delete(ctx context.Context, group, key string) error

	// ScanGroup visits every entry in a group. Iteration order is
	// unspecified; fn receives the raw JSON value.
	ScanGroup(ctx context.Context, group string, fn func(key string, value []byte) error) error
}
