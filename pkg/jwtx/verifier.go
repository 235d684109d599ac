package jwtx

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrWrongUse    = errors.New("jwtx: wrong token use")
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSAVerifier validates Ed25519-signed tokens against a single public key.
type EdDSAVerifier struct {
	pub    ed25519.PublicKey
	issuer string

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration
}

// NewVerifierEdDSA builds a verifier for tokens signed by the matching
// EdDSASigner. An empty issuer disables issuer enforcement.
func NewVerifierEdDSA(pub ed25519.PublicKey, issuer string) *EdDSAVerifier {
	return &EdDSAVerifier{pub: pub, issuer: issuer}
}

func (v *EdDSAVerifier) Verify(token string) (Claims, error) {
	var claims Claims

	parsed, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, ErrAlgMismatch
			}
			return v.pub, nil
		},
		jwt.WithoutClaimsValidation(), // claim checks below, with leeway
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, ErrAlgMismatch):
			return Claims{}, ErrAlgMismatch
		default:
			return Claims{}, ErrInvalidSig
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidSig
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}

	now := time.Now().UTC()
	if v.Leeway > 0 {
		if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Add(v.Leeway)) {
			return Claims{}, ErrExpired
		}
		if claims.NotBefore != nil && now.Before(claims.NotBefore.Add(-v.Leeway)) {
			return Claims{}, ErrNotYetValid
		}
		return claims, nil
	}

	if err := claims.ValidateExpiry(now); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

// VerifyUse runs Verify and additionally enforces the "use" claim, so a
// refresh token can't be replayed where an access token is expected.
func VerifyUse(v Verifier, token, use string) (Claims, error) {
	claims, err := v.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.Use != use {
		return Claims{}, ErrWrongUse
	}
	return claims, nil
}
