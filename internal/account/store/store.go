package store

import (
	"context"
	"errors"
	"time"

	"github.com/brightlake/identity/internal/account/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for the account side. Concrete
// drivers (sqlite today) implement this. Sub-repositories keep concerns
// tidy and stop callers from accidentally nesting transactions.
type Store interface {
	Accounts() Accounts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetByID returns an account by id.
	GetByID(ctx context.Context, id string) (domain.Account, error)

	// GetByEmail returns the account owning the live email address.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	// GetByConfirmationCode looks an account up by its pending
	// registration code.
	GetByConfirmationCode(ctx context.Context, code string) (domain.Account, error)

	// GetByPendingEmail looks an account up by the address an email
	// change is switching to.
	GetByPendingEmail(ctx context.Context, email string) (domain.Account, error)

	// Create inserts a new account (id is provided by app via ULID).
	// Returns ErrAlreadyExists on an email collision.
	Create(ctx context.Context, a domain.Account) error

	// List returns all accounts ordered by creation (newest first).
	List(ctx context.Context) ([]domain.Account, error)

	// MarkConfirmed flips confirmed=1, locked=0 and clears the
	// confirmation code.
	MarkConfirmed(ctx context.Context, id string) error

	// SetConfirmationCode replaces the pending registration code.
	SetConfirmationCode(ctx context.Context, id string, code string) error

	// SetPasswordResetCode stores a reset code with its absolute expiry.
	SetPasswordResetCode(ctx context.Context, id string, code string, expiresAt time.Time) error

	// ClearPasswordReset drops the reset code and its expiry.
	ClearPasswordReset(ctx context.Context, id string) error

	// SetPendingEmail begins an email change: pending address, change
	// code and the code's expiry. The live email is untouched.
	SetPendingEmail(ctx context.Context, id string, pendingEmail, code string, expiresAt time.Time) error

	// SetEmailChangeCode replaces the change code (and expiry) of an
	// in-flight email change.
	SetEmailChangeCode(ctx context.Context, id string, code string, expiresAt time.Time) error

	// PromotePendingEmail makes pending_email the live email and clears
	// the pending fields. Returns ErrAlreadyExists if another account
	// claimed the address in the meantime.
	PromotePendingEmail(ctx context.Context, id string) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id string, newHash string) error

	// UpdateRoles replaces the role set.
	UpdateRoles(ctx context.Context, id string, roles []string) error

	// SetRefreshToken stores the single live refresh token; nil clears it.
	SetRefreshToken(ctx context.Context, id string, token *string) error

	// SetConfirmedFlag toggles the enabled/disabled state.
	SetConfirmedFlag(ctx context.Context, id string, confirmed bool) error

	// SetLockedFlag toggles the administrative lock.
	SetLockedFlag(ctx context.Context, id string, locked bool) error

	// UpdateName, UpdateSecondName and UpdateSurName persist single
	// denormalized name fields.
	UpdateName(ctx context.Context, id string, name string) error
	UpdateSecondName(ctx context.Context, id string, secondName string) error
	UpdateSurName(ctx context.Context, id string, surName string) error

	// ClearExpiredPasswordResetCodes and ClearExpiredEmailChangeCodes are
	// housekeeping: they null out code fields whose expiry has passed so
	// durable state converges with the ephemeral store.
	ClearExpiredPasswordResetCodes(ctx context.Context, now time.Time) error
	ClearExpiredEmailChangeCodes(ctx context.Context, now time.Time) error
}
