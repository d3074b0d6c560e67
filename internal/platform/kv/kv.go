// Package kv provides the durable key-value port used to persist the
// permission matrix and active role.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound indicates the key has never been written.
var ErrNotFound = errors.New("kv: not found")

// Entry is a single key/value pair.
type Entry struct {
	Key   string
	Value string
}

// Store is a synchronous string key-value store.
type Store interface {
	// Load returns the value stored under key or ErrNotFound.
	Load(ctx context.Context, key string) (string, error)
	// Save writes every entry; implementations apply the batch atomically.
	Save(ctx context.Context, entries ...Entry) error
}
