// Package store holds the key-value backends behind the credential store and
// the session registry.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// KV is a synchronized string key-value store. Every method is atomic with
// respect to concurrent callers of the same key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	// PutIfAbsent stores value only when key has no live entry. It reports
	// whether the write happened.
	PutIfAbsent(ctx context.Context, key, value string) (bool, error)
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
