package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *EdDSASigner {
	t.Helper()

	pemKey, err := GenerateEdDSAKeyPEM()
	require.NoError(t, err)

	signer, err := NewSignerEdDSA("test-key", pemKey)
	require.NoError(t, err)
	return signer
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := NewVerifierEdDSA(signer.Public(), "identity-test")

	claims := NewClaims(
		UseAccess,
		"01J0000000000000000000ACCT",
		"jane@example.com",
		[]string{"user"},
		true, false,
		time.Minute,
		"identity-test",
		time.Now().UTC(),
	)

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "01J0000000000000000000ACCT", got.Subject)
	require.Equal(t, "jane@example.com", got.Email)
	require.Equal(t, []string{"user"}, got.Roles)
	require.True(t, got.Confirmed)
	require.False(t, got.Locked)
	require.Equal(t, UseAccess, got.Use)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	other := newTestSigner(t)
	verifier := NewVerifierEdDSA(other.Public(), "")

	token, err := signer.Sign(NewClaims(
		UseAccess, "acct", "a@x.com", []string{"user"},
		true, false, time.Minute, "", time.Now().UTC(),
	))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := NewVerifierEdDSA(signer.Public(), "")

	token, err := signer.Sign(NewClaims(
		UseAccess, "acct", "a@x.com", []string{"user"},
		true, false, time.Minute, "", time.Now().UTC().Add(-2*time.Minute),
	))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := NewVerifierEdDSA(signer.Public(), "expected-issuer")

	token, err := signer.Sign(NewClaims(
		UseAccess, "acct", "a@x.com", []string{"user"},
		true, false, time.Minute, "someone-else", time.Now().UTC(),
	))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := NewVerifierEdDSA(signer.Public(), "")

	_, err := verifier.Verify("definitely.not.a-jwt")
	require.Error(t, err)
}

func TestVerifyUseEnforcesTokenUse(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := NewVerifierEdDSA(signer.Public(), "")

	refresh, err := signer.Sign(NewClaims(
		UseRefresh, "acct", "a@x.com", []string{"user"},
		true, false, time.Hour, "", time.Now().UTC(),
	))
	require.NoError(t, err)

	_, err = VerifyUse(verifier, refresh, UseAccess)
	require.ErrorIs(t, err, ErrWrongUse)

	claims, err := VerifyUse(verifier, refresh, UseRefresh)
	require.NoError(t, err)
	require.Equal(t, UseRefresh, claims.Use)
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	claims := NewClaims(UseAccess, "acct", "a@x.com", nil, true, false, time.Minute, "", now)

	require.Equal(t, time.Minute, claims.Remaining(now))
	require.Equal(t, time.Duration(0), claims.Remaining(now.Add(2*time.Minute)))
}
