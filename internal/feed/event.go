// Package feed carries profile snapshots from the account side to the
// profile side. Delivery is one-way, asynchronous and at-least-once:
// consumers must be idempotent and must not assume cross-account ordering.
package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfileEvent is a full denormalized snapshot of the profile-relevant
// account fields at emission time, not a diff. Fields may be blank when
// only a subset changed; the consumer decides what blank means.
type ProfileEvent struct {
	// EventID uniquely identifies this emission. Redeliveries of the same
	// emission reuse it.
	EventID string `json:"event_id"`

	// AccountID is the originating account identifier and the profile key.
	AccountID string `json:"account_id"`

	Name       string `json:"name,omitempty"`
	SecondName string `json:"second_name,omitempty"`
	SurName    string `json:"sur_name,omitempty"`
	Email      string `json:"email,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// NewProfileEvent stamps a snapshot with a fresh event id and emission time.
func NewProfileEvent(accountID, name, secondName, surName, email string) ProfileEvent {
	return ProfileEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		Name:       name,
		SecondName: secondName,
		SurName:    surName,
		Email:      email,
		EmittedAt:  time.Now().UTC(),
	}
}

// Publisher is the producer-side capability. Publish failures are the
// transport's concern; account state transitions never roll back because
// an event could not be queued.
type Publisher interface {
	PublishProfile(ctx context.Context, ev ProfileEvent) error
}

// Handler consumes one event. Returning an error requests redelivery.
type Handler func(ctx context.Context, ev ProfileEvent) error
