package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// VerificationCodeLength is the length of codes sent in confirmation,
// password-reset and email-change mails.
const VerificationCodeLength = 6

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewVerificationCode returns a short uppercase alphanumeric code drawn from
// crypto/rand. Collisions across live codes are negligible but not
// impossible; callers must be prepared for the durable store's uniqueness
// constraint to reject a duplicate.
func NewVerificationCode() (string, error) {
	code := make([]byte, VerificationCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate verification code: %w", err)
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token.
// Used as the revocation-set key so raw access tokens never land in the
// volatile store.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
