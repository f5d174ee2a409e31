// Package cache provides the TTL'd string cache consulted around provider
// fetches. Implementations: in-memory, SQLite-backed, and a no-op.
package cache

import (
	"context"
	"time"
)

// DefaultTTL applies when a Set call passes a zero TTL.
const DefaultTTL = 5 * time.Minute

// Cache is a string-keyed store with per-entry TTL.
type Cache interface {
	// Get returns the value for key and whether a live entry exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A zero ttl means DefaultTTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key if present.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// Nop discards writes and never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error)        { return "", false, nil }
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Nop) Delete(context.Context, string) error                     { return nil }
func (Nop) Clear(context.Context) error                              { return nil }
