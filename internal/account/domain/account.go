package domain

import "time"

// Role names assigned to accounts. Roles are a flat set; an account always
// holds at least one.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the durable identity record. Email is unique across all
// accounts. An account with Confirmed=false can never pass authentication,
// and RefreshToken==nil means no valid session exists for the account.
type Account struct {
	ID           string
	Email        string
	PasswordHash string // argon2 encoded

	// Denormalized name fields propagated to the profile side.
	Name       string // given name
	SecondName string // middle name / patronymic
	SurName    string // family name

	Roles []string

	Confirmed bool
	Locked    bool

	// ConfirmationCode is the pending registration code, nil once confirmed.
	ConfirmationCode *string

	// Password reset code plus its absolute expiry, both nil outside an
	// active reset flow.
	PasswordResetCode      *string
	PasswordResetExpiresAt *time.Time

	// Email change flow: the address being switched to, its code and the
	// code's absolute expiry. The live Email field stays untouched until
	// the change is confirmed.
	PendingEmail         *string
	EmailChangeCode      *string
	EmailChangeExpiresAt *time.Time

	// RefreshToken is the single live refresh token for the account, nil
	// when no session exists.
	RefreshToken *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether the account holds the named role.
func (a Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
