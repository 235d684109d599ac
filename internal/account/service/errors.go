package service

import "errors"

// Caller-visible errors, grouped by kind. Everything here is synchronous
// and non-retryable except ErrTooManyRequests, which clears on its own
// once the send window expires.
var (
	// Validation
	ErrWeakPassword            = errors.New("weak_password")
	ErrEmptyRoleSet            = errors.New("empty_role_set")
	ErrCurrentPasswordRequired = errors.New("current_password_required")

	// Conflict
	ErrDuplicateEmail = errors.New("duplicate_email")
	ErrEmailTaken     = errors.New("email_taken")

	// Not found
	ErrNotFound = errors.New("account_not_found")

	// Authentication
	ErrInvalidCredentials      = errors.New("invalid_credentials")
	ErrCurrentPasswordMismatch = errors.New("current_password_mismatch")
	ErrInvalidOrExpiredCode    = errors.New("invalid_or_expired_code")
	ErrInvalidRefresh          = errors.New("invalid_refresh_token")
	ErrTokenRevoked            = errors.New("token_revoked")
	ErrForbidden               = errors.New("forbidden")

	// Rate limiting
	ErrTooManyRequests = errors.New("too_many_requests")

	// State
	ErrAlreadyConfirmed    = errors.New("already_confirmed")
	ErrAccountNotConfirmed = errors.New("account_not_confirmed")
)

// MinPasswordLength is the floor for any new password.
const MinPasswordLength = 8
