// Package kv provides the opaque key -> JSON blob store that session state
// is persisted to. Values are serialized once per write; a zero TTL means
// the key never expires.
package kv

import (
	"context"
	"time"
)

// Store is the persistence contract the session layer depends on.
type Store interface {
	// GetJSON reads the blob at key into dest. It reports false when the
	// key is absent or expired, which is not an error.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	// SetJSON serializes v and writes it under key, replacing any prior
	// value. ttl <= 0 stores the key without expiry.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
