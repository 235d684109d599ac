package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants.
// These provide sensible security defaults but can be overridden per-service.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token use values carried in the "use" claim. A refresh token presented
// where an access token is expected (or vice versa) must be rejected even
// though both carry valid signatures.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are the token claims shared by the access and refresh credentials.
// Both encode the account identity snapshot taken at mint time; consumers
// must not trust Confirmed/Locked beyond the token's own lifetime.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the account at mint time.
	Email string `json:"email,omitempty"`

	// Roles held by the account at mint time, e.g. ["user"] or ["user","admin"].
	Roles []string `json:"roles,omitempty"`

	// Confirmed reports whether the account had completed email
	// verification when the token was minted.
	Confirmed bool `json:"confirmed,omitempty"`

	// Locked reports whether the account was administratively locked when
	// the token was minted.
	Locked bool `json:"locked,omitempty"`

	// Use discriminates access from refresh tokens.
	Use string `json:"use,omitempty"`
}

// NewClaims builds minimally-correct claims for the given token use.
func NewClaims(
	use string,
	accountID, email string,
	roles []string,
	confirmed, locked bool,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:     email,
		Roles:     roles,
		Confirmed: confirmed,
		Locked:    locked,
		Use:       use,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Remaining reports how much of the token's lifetime is left at now.
// Returns zero (not a negative duration) for expired tokens.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	left := c.ExpiresAt.Time.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	// Check if a valid token isn't used before it is valid (nbf)
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
