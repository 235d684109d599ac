package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brightlake/identity/internal/account/codes"
	"github.com/brightlake/identity/internal/account/domain"
	"github.com/brightlake/identity/internal/account/notify"
	"github.com/brightlake/identity/internal/account/store"
	"github.com/brightlake/identity/internal/feed"
	"github.com/brightlake/identity/pkg/cryptox"
	"github.com/brightlake/identity/pkg/idx"
	"github.com/brightlake/identity/pkg/slogx"
)

// registerAttempts bounds the retry loop around verification code
// collisions on the unique code column.
const registerAttempts = 3

// AccountService drives the account state machine:
// Unconfirmed -> Confirmed(Active|Locked). Durable writes go through the
// store; live codes and send counters live in the ephemeral code store;
// profile-affecting changes are pushed onto the feed.
type AccountService struct {
	Store   store.Store
	Codes   *codes.Store
	Limiter *codes.RateLimiter
	Mailer  notify.Mailer
	Feed    feed.Publisher
	Tokens  *TokenService
	CodeTTL time.Duration
}

func (s *AccountService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return codes.DefaultCodeTTL
}

// publishSnapshot pushes the account's current profile fields onto the
// feed. Failures are logged, never surfaced: the durable transition that
// triggered the event has already committed.
func (s *AccountService) publishSnapshot(ctx context.Context, a domain.Account) {
	ev := feed.NewProfileEvent(a.ID, a.Name, a.SecondName, a.SurName, a.Email)
	if err := s.Feed.PublishProfile(ctx, ev); err != nil {
		slogx.FromContext(ctx).Error("profile event publish failed",
			slog.Any("error", err),
			slog.String("account_id", a.ID),
		)
	}
}

// sendMail hands a code to the dispatcher, fire and forget.
func (s *AccountService) sendMail(ctx context.Context, to, code string, kind notify.Kind) {
	if err := s.Mailer.Send(ctx, to, code, kind); err != nil {
		slogx.FromContext(ctx).Error("mail dispatch failed",
			slog.Any("error", err),
			slog.String("kind", string(kind)),
		)
	}
}

// Register creates an unconfirmed account, issues its confirmation code,
// emits the profile-creation event and requests the confirmation mail.
func (s *AccountService) Register(ctx context.Context, email, password, name, secondName, surName string) (domain.Account, error) {
	if len(password) < MinPasswordLength {
		return domain.Account{}, ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, err
	}

	a := domain.Account{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		SecondName:   secondName,
		SurName:      surName,
		Roles:        []string{domain.RoleUser},
		Confirmed:    false,
		Locked:       true,
	}

	// The code column is unique, so a collision surfaces as a constraint
	// failure. Regenerate and retry unless the email itself is the
	// conflict.
	var code string
	for attempt := 0; ; attempt++ {
		code, err = cryptox.NewVerificationCode()
		if err != nil {
			return domain.Account{}, err
		}
		a.ConfirmationCode = &code

		err = s.Store.Accounts().Create(ctx, a)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, err
		}
		if _, lookupErr := s.Store.Accounts().GetByEmail(ctx, email); lookupErr == nil {
			return domain.Account{}, ErrDuplicateEmail
		}
		if attempt+1 >= registerAttempts {
			return domain.Account{}, ErrDuplicateEmail
		}
	}

	if err := s.Codes.Put(ctx, codes.PurposeRegistration, a.ID, code, s.codeTTL()); err != nil {
		return domain.Account{}, err
	}

	ctx = slogx.WithAccountID(ctx, a.ID)
	s.publishSnapshot(ctx, a)
	s.sendMail(ctx, a.Email, code, notify.KindConfirmation)
	return a, nil
}

// Confirm activates the account holding this code. The return is a
// boolean soft-fail: an unknown or expired code yields (false, nil), not
// an error.
func (s *AccountService) Confirm(ctx context.Context, code string) (bool, error) {
	a, err := s.Store.Accounts().GetByConfirmationCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	live, err := s.Codes.IsLive(ctx, codes.PurposeRegistration, code)
	if err != nil {
		return false, err
	}
	if !live {
		return false, nil
	}

	if err := s.Store.Accounts().MarkConfirmed(ctx, a.ID); err != nil {
		return false, err
	}
	if err := s.Codes.Delete(ctx, codes.PurposeRegistration, code); err != nil {
		return false, err
	}
	return true, nil
}

// ResendConfirmation invalidates the previous confirmation code, issues a
// fresh one and re-sends the mail, gated by the per-recipient send
// counter.
func (s *AccountService) ResendConfirmation(ctx context.Context, email string) error {
	a, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if a.Confirmed {
		return ErrAlreadyConfirmed
	}

	if err := s.Limiter.Allow(ctx, email); err != nil {
		if errors.Is(err, codes.ErrRateLimited) {
			return ErrTooManyRequests
		}
		return err
	}

	if a.ConfirmationCode != nil {
		if err := s.Codes.Delete(ctx, codes.PurposeRegistration, *a.ConfirmationCode); err != nil {
			return err
		}
	}

	code, err := cryptox.NewVerificationCode()
	if err != nil {
		return err
	}
	if err := s.Store.Accounts().SetConfirmationCode(ctx, a.ID, code); err != nil {
		return err
	}
	if err := s.Codes.Put(ctx, codes.PurposeRegistration, a.ID, code, s.codeTTL()); err != nil {
		return err
	}

	s.sendMail(ctx, email, code, notify.KindConfirmation)
	return nil
}

// RequestPasswordReset stores a reset code with an absolute expiry and
// mails it to the account holder.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	code, err := cryptox.NewVerificationCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(s.codeTTL()).UTC()

	if err := s.Store.Accounts().SetPasswordResetCode(ctx, a.ID, code, expiresAt); err != nil {
		return err
	}
	if err := s.Codes.Put(ctx, codes.PurposePasswordReset, a.ID, code, s.codeTTL()); err != nil {
		return err
	}

	s.sendMail(ctx, email, code, notify.KindPasswordReset)
	return nil
}

// ApplyPasswordReset consumes a live reset code and installs the new
// password.
func (s *AccountService) ApplyPasswordReset(ctx context.Context, email, code, newPassword string) error {
	a, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	now := time.Now()
	if a.PasswordResetCode == nil || *a.PasswordResetCode != code {
		return ErrInvalidOrExpiredCode
	}
	if a.PasswordResetExpiresAt == nil || now.After(*a.PasswordResetExpiresAt) {
		return ErrInvalidOrExpiredCode
	}

	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	// The new hash and the code clear land together or not at all, so a
	// half-applied reset can never leave the consumed code replayable.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdatePasswordHash(ctx, a.ID, hash); err != nil {
			return err
		}
		return tx.Accounts().ClearPasswordReset(ctx, a.ID)
	})
	if err != nil {
		return err
	}
	return s.Codes.Delete(ctx, codes.PurposePasswordReset, code)
}

// RequestEmailChange records the pending address and mails a change code
// to it. The live email is untouched until confirmation.
func (s *AccountService) RequestEmailChange(ctx context.Context, authz domain.Authz, accountID, newEmail string) error {
	if !authz.IsOwner(accountID) && !authz.IsAdmin() {
		return ErrForbidden
	}

	a, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if _, err := s.Store.Accounts().GetByEmail(ctx, newEmail); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	code, err := cryptox.NewVerificationCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(s.codeTTL()).UTC()

	if err := s.Store.Accounts().SetPendingEmail(ctx, a.ID, newEmail, code, expiresAt); err != nil {
		return err
	}
	if err := s.Codes.Put(ctx, codes.PurposeEmailChange, a.ID, code, s.codeTTL()); err != nil {
		return err
	}

	s.sendMail(ctx, newEmail, code, notify.KindEmailChange)
	return nil
}

// ConfirmEmailChange promotes the pending address to the live one and
// emits the profile-update event.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, pendingEmail, code string) error {
	a, err := s.Store.Accounts().GetByPendingEmail(ctx, pendingEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	now := time.Now()
	if a.EmailChangeCode == nil || *a.EmailChangeCode != code {
		return ErrInvalidOrExpiredCode
	}
	if a.EmailChangeExpiresAt == nil || now.After(*a.EmailChangeExpiresAt) {
		return ErrInvalidOrExpiredCode
	}

	if err := s.Store.Accounts().PromotePendingEmail(ctx, a.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrEmailTaken
		}
		return err
	}
	if err := s.Codes.Delete(ctx, codes.PurposeEmailChange, code); err != nil {
		return err
	}

	updated, err := s.Store.Accounts().GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	s.publishSnapshot(ctx, updated)
	return nil
}

// ResendEmailChangeCode replaces the change code for an in-flight email
// change and re-sends it to the pending address, gated by the send
// counter.
func (s *AccountService) ResendEmailChangeCode(ctx context.Context, pendingEmail string) error {
	a, err := s.Store.Accounts().GetByPendingEmail(ctx, pendingEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.Limiter.Allow(ctx, pendingEmail); err != nil {
		if errors.Is(err, codes.ErrRateLimited) {
			return ErrTooManyRequests
		}
		return err
	}

	if a.EmailChangeCode != nil {
		if err := s.Codes.Delete(ctx, codes.PurposeEmailChange, *a.EmailChangeCode); err != nil {
			return err
		}
	}

	code, err := cryptox.NewVerificationCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(s.codeTTL()).UTC()

	if err := s.Store.Accounts().SetEmailChangeCode(ctx, a.ID, code, expiresAt); err != nil {
		return err
	}
	if err := s.Codes.Put(ctx, codes.PurposeEmailChange, a.ID, code, s.codeTTL()); err != nil {
		return err
	}

	s.sendMail(ctx, pendingEmail, code, notify.KindEmailChange)
	return nil
}

// UpdatePassword rotates the password of an authenticated account. The
// current password is always required and verified first.
func (s *AccountService) UpdatePassword(ctx context.Context, authz domain.Authz, accountID, currentPassword, newPassword string) error {
	if !authz.IsOwner(accountID) && !authz.IsAdmin() {
		return ErrForbidden
	}
	if currentPassword == "" {
		return ErrCurrentPasswordRequired
	}

	a, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := cryptox.VerifyPassword(currentPassword, a.PasswordHash); err != nil {
		return ErrCurrentPasswordMismatch
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.Store.Accounts().UpdatePasswordHash(ctx, a.ID, hash)
}

// UpdateRoles replaces the account's role set. Existing sessions are
// force-invalidated so stale tokens carrying the old roles are never
// trusted.
func (s *AccountService) UpdateRoles(ctx context.Context, authz domain.Authz, accountID string, roles []string) error {
	if !authz.IsAdmin() {
		return ErrForbidden
	}
	if len(roles) == 0 {
		return ErrEmptyRoleSet
	}

	if err := s.Store.Accounts().UpdateRoles(ctx, accountID, roles); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.Tokens.InvalidateSessions(ctx, accountID)
}

// SetEnabled flips the confirmed flag administratively. Disabling kills
// every live session immediately; enabling lifts the block and forces a
// fresh sign-in.
func (s *AccountService) SetEnabled(ctx context.Context, authz domain.Authz, accountID string, enabled bool) error {
	if !authz.IsAdmin() {
		return ErrForbidden
	}

	if err := s.Store.Accounts().SetConfirmedFlag(ctx, accountID, enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if !enabled {
		return s.Tokens.InvalidateSessions(ctx, accountID)
	}
	return s.Tokens.ReinstateSessions(ctx, accountID)
}

// SetLocked flips the locked flag administratively, with the same session
// consequences as SetEnabled.
func (s *AccountService) SetLocked(ctx context.Context, authz domain.Authz, accountID string, locked bool) error {
	if !authz.IsAdmin() {
		return ErrForbidden
	}

	if err := s.Store.Accounts().SetLockedFlag(ctx, accountID, locked); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if locked {
		return s.Tokens.InvalidateSessions(ctx, accountID)
	}
	return s.Tokens.ReinstateSessions(ctx, accountID)
}

// UpdateName persists the given name and propagates the new snapshot.
func (s *AccountService) UpdateName(ctx context.Context, authz domain.Authz, accountID, name string) error {
	return s.updateProfileField(ctx, authz, accountID, func(id string) error {
		return s.Store.Accounts().UpdateName(ctx, id, name)
	})
}

// UpdateSecondName persists the patronymic and propagates the new
// snapshot.
func (s *AccountService) UpdateSecondName(ctx context.Context, authz domain.Authz, accountID, secondName string) error {
	return s.updateProfileField(ctx, authz, accountID, func(id string) error {
		return s.Store.Accounts().UpdateSecondName(ctx, id, secondName)
	})
}

// UpdateSurName persists the surname and propagates the new snapshot.
func (s *AccountService) UpdateSurName(ctx context.Context, authz domain.Authz, accountID, surName string) error {
	return s.updateProfileField(ctx, authz, accountID, func(id string) error {
		return s.Store.Accounts().UpdateSurName(ctx, id, surName)
	})
}

func (s *AccountService) updateProfileField(ctx context.Context, authz domain.Authz, accountID string, apply func(id string) error) error {
	if !authz.IsOwner(accountID) && !authz.IsAdmin() {
		return ErrForbidden
	}

	if err := apply(accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	updated, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	s.publishSnapshot(ctx, updated)
	return nil
}

// Get returns one account, readable by its owner or an admin.
func (s *AccountService) Get(ctx context.Context, authz domain.Authz, accountID string) (domain.Account, error) {
	if !authz.IsOwner(accountID) && !authz.IsAdmin() {
		return domain.Account{}, ErrForbidden
	}

	a, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, err
	}
	return a, nil
}

// List returns every account, admin only.
func (s *AccountService) List(ctx context.Context, authz domain.Authz) ([]domain.Account, error) {
	if !authz.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.Store.Accounts().List(ctx)
}
