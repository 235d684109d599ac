// Package domain holds the profile-side view of an account. The profile
// service owns this data independently; nothing here references the
// account store.
package domain

import "time"

// Profile is the denormalized per-account view maintained from the feed.
// AvatarRef is an opaque reference to externally stored image data.
type Profile struct {
	AccountID  string    `json:"account_id"`
	Name       string    `json:"name"`
	SecondName string    `json:"second_name"`
	SurName    string    `json:"sur_name"`
	Email      string    `json:"email"`
	AvatarRef  *string   `json:"avatar_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
