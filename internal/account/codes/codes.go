// Package codes is the ephemeral side of account verification: short-lived
// single-use codes and per-recipient send-rate counters, both held in the
// volatile cache. The durable code columns on the account row are owned by
// the lifecycle service; this package only answers "is this code still live"
// and "may we send another message to this address".
package codes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightlake/identity/pkg/cache"
)

// Code purposes. Each purpose scopes its own key space so a registration
// code can never confirm an email change.
const (
	PurposeRegistration  = "registration"
	PurposePasswordReset = "password-reset"
	PurposeEmailChange   = "email-change"
)

// DefaultCodeTTL is how long an issued verification code stays live.
const DefaultCodeTTL = 24 * time.Hour

var (
	// ErrRateLimited reports that the recipient has hit the send ceiling
	// for the current window.
	ErrRateLimited = errors.New("codes: send rate limit exceeded")
)

// Store tracks live verification codes in the volatile cache.
type Store struct {
	cache cache.Cache
}

func NewStore(c cache.Cache) *Store {
	return &Store{cache: c}
}

func codeKey(purpose, code string) string {
	return fmt.Sprintf("code:%s:%s", purpose, code)
}

// Put registers code as live for ttl, bound to owner (an account id or
// recipient address). A code put twice resets its TTL and owner.
func (s *Store) Put(ctx context.Context, purpose, owner, code string, ttl time.Duration) error {
	return s.cache.Set(ctx, codeKey(purpose, code), []byte(owner), ttl)
}

// IsLive reports whether code is known and unexpired for purpose.
func (s *Store) IsLive(ctx context.Context, purpose, code string) (bool, error) {
	_, ok, err := s.cache.Get(ctx, codeKey(purpose, code))
	return ok, err
}

// Delete consumes the code. Codes are single use, so every successful
// validation must be followed by a Delete.
func (s *Store) Delete(ctx context.Context, purpose, code string) error {
	return s.cache.Delete(ctx, codeKey(purpose, code))
}

// RateLimiter gates outbound verification messages per recipient with a
// fixed-window counter. The counter resets only by window expiry, never by
// explicit clear, so the count monotonically reflects sends within the
// trailing window.
type RateLimiter struct {
	cache  cache.Cache
	Limit  int64
	Window time.Duration
}

// Rate limit defaults: three sends per recipient per fifteen minutes.
const (
	DefaultSendLimit  = 3
	DefaultSendWindow = 15 * time.Minute
)

func NewRateLimiter(c cache.Cache) *RateLimiter {
	return &RateLimiter{
		cache:  c,
		Limit:  DefaultSendLimit,
		Window: DefaultSendWindow,
	}
}

func counterKey(recipient string) string {
	return "sends:" + recipient
}

// Allow records one send attempt for recipient and returns ErrRateLimited
// when the attempt exceeds the ceiling. The attempt is counted even when
// rejected, so hammering the endpoint never shortens the wait.
func (l *RateLimiter) Allow(ctx context.Context, recipient string) error {
	n, err := l.cache.Increment(ctx, counterKey(recipient), l.Window)
	if err != nil {
		return err
	}
	if n > l.Limit {
		return ErrRateLimited
	}
	return nil
}
