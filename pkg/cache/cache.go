// Package cache defines the contract for the volatile TTL key/value store
// backing verification codes, send-rate counters, the token revocation set
// and profile summaries. Entries are monotone-until-expiry: nothing but the
// TTL ever shrinks a counter or resurrects a deleted key.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidTTL reports a zero or negative TTL on a write.
	ErrInvalidTTL = errors.New("cache: ttl must be positive")
)

// Cache is the volatile store contract. Implementations must expire entries
// at their TTL and must make Increment atomic (a single round trip, never
// read-modify-write across two calls).
type Cache interface {
	// Set stores val under key, replacing any previous value and TTL.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Get returns the live value for key. The second return is false when
	// the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment bumps the counter at key by one and returns the new count.
	// The first increment creates the entry with the window as its TTL;
	// later increments never extend it, so the count covers a fixed window
	// that resets only by time expiry.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}
