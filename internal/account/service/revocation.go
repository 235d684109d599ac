package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brightlake/identity/pkg/cache"
	"github.com/brightlake/identity/pkg/cryptox"
)

// revokedValue is the marker stored under revocation keys. Only presence
// matters.
var revokedValue = []byte("1")

// RevocationList is the cache-backed token denylist plus the coarser
// account-level block set. A block entry records the instant it was
// imposed, so token checks can discriminate by mint time: only tokens
// minted before the block are rejected.
type RevocationList struct {
	Cache cache.Cache
}

func revokedKey(token string) string {
	return "revoked:" + cryptox.FingerprintToken(token)
}

func blockedKey(accountID string) string {
	return "blocked:" + accountID
}

// RevokeToken denylists one token for ttl, which callers set to the
// token's remaining lifetime so the entry expires exactly when the token
// would have anyway.
func (r *RevocationList) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past natural expiry, nothing to deny.
		return nil
	}
	return r.Cache.Set(ctx, revokedKey(token), revokedValue, ttl)
}

// IsRevoked reports whether token has been individually denylisted.
func (r *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, ok, err := r.Cache.Get(ctx, revokedKey(token))
	return ok, err
}

// BlockAccount rejects every token carrying accountID that was minted
// before since, covering in-flight access tokens that were never
// individually enumerated. Tokens minted from since on stay trusted.
func (r *RevocationList) BlockAccount(ctx context.Context, accountID string, since time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	val := strconv.AppendInt(nil, since.Unix(), 10)
	return r.Cache.Set(ctx, blockedKey(accountID), val, ttl)
}

// BlockedSince returns the instant the account's live block was imposed.
// The second return is false when no block is live.
func (r *RevocationList) BlockedSince(ctx context.Context, accountID string) (time.Time, bool, error) {
	raw, ok, err := r.Cache.Get(ctx, blockedKey(accountID))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed block entry for %s: %w", accountID, err)
	}
	return time.Unix(sec, 0), true, nil
}

// Unblock lifts an account-level block. Unblocking an account that is
// not blocked is not an error.
func (r *RevocationList) Unblock(ctx context.Context, accountID string) error {
	return r.Cache.Delete(ctx, blockedKey(accountID))
}
