// Package store defines the durable contract for the profile side.
package store

import (
	"context"
	"errors"

	"github.com/brightlake/identity/internal/profile/domain"
)

var (
	ErrNotFound = errors.New("store: profile not found")
)

// Store is the driver-level interface for the profile database.
type Store interface {
	Profiles() Profiles

	// ApplyMigrations brings the schema up to date.
	ApplyMigrations() error

	Close() error
	Ping(ctx context.Context) error
}

// Profiles is the repository for denormalized account profiles.
type Profiles interface {
	// Get returns the profile for an account id.
	Get(ctx context.Context, accountID string) (domain.Profile, error)

	// GetByEmail returns the profile holding this email.
	GetByEmail(ctx context.Context, email string) (domain.Profile, error)

	// Upsert applies a snapshot keyed by account id. Blank snapshot
	// fields keep the stored column value, so a partial snapshot never
	// erases data. Safe under redelivery.
	Upsert(ctx context.Context, p domain.Profile) error

	// SetAvatar stores the avatar reference; nil clears it.
	SetAvatar(ctx context.Context, accountID string, ref *string) error

	// List returns every profile ordered by account id.
	List(ctx context.Context) ([]domain.Profile, error)
}
