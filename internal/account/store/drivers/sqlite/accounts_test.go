package sqlite

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brightlake/identity/internal/account/domain"
	"github.com/brightlake/identity/internal/account/store"
	"github.com/brightlake/identity/pkg/idx"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

var codeSeq atomic.Int64

// newTestAccount builds a fixture with a distinct confirmation code since
// the code column carries a unique index.
func newTestAccount(email string) domain.Account {
	code := fmt.Sprintf("CODE%02d", codeSeq.Add(1))
	return domain.Account{
		ID:               idx.New().String(),
		Email:            email,
		PasswordHash:     "$argon2id$v=19$m=1,t=1,p=1$AAAA$BBBB",
		Name:             "Jane",
		SecondName:       "Q",
		SurName:          "Doe",
		Roles:            []string{domain.RoleUser},
		Confirmed:        false,
		Locked:           true,
		ConfirmationCode: &code,
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("jane@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Email, got.Email)
	require.Equal(t, []string{domain.RoleUser}, got.Roles)
	require.False(t, got.Confirmed)
	require.True(t, got.Locked)
	require.NotNil(t, got.ConfirmationCode)
	require.Equal(t, *a.ConfirmationCode, *got.ConfirmationCode)
	require.Nil(t, got.RefreshToken)

	byEmail, err := s.Accounts().GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, byEmail.ID)

	byCode, err := s.Accounts().GetByConfirmationCode(ctx, *a.ConfirmationCode)
	require.NoError(t, err)
	require.Equal(t, a.ID, byCode.ID)
}

func TestCreateDuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Accounts().Create(ctx, newTestAccount("dup@example.com")))
	err := s.Accounts().Create(ctx, newTestAccount("dup@example.com"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Accounts().GetByID(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().GetByConfirmationCode(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkConfirmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("confirm@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))
	require.NoError(t, s.Accounts().MarkConfirmed(ctx, a.ID))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.Confirmed)
	require.False(t, got.Locked)
	require.Nil(t, got.ConfirmationCode)
}

func TestPasswordResetFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("reset@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	expiry := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, s.Accounts().SetPasswordResetCode(ctx, a.ID, "RST999", expiry))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PasswordResetCode)
	require.Equal(t, "RST999", *got.PasswordResetCode)
	require.NotNil(t, got.PasswordResetExpiresAt)
	require.WithinDuration(t, expiry, *got.PasswordResetExpiresAt, time.Second)

	require.NoError(t, s.Accounts().ClearPasswordReset(ctx, a.ID))
	got, err = s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, got.PasswordResetCode)
	require.Nil(t, got.PasswordResetExpiresAt)
}

func TestEmailChangeFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("old@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	expiry := time.Now().Add(15 * time.Minute).UTC()
	require.NoError(t, s.Accounts().SetPendingEmail(ctx, a.ID, "new@example.com", "CHG111", expiry))

	byPending, err := s.Accounts().GetByPendingEmail(ctx, "new@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, byPending.ID)

	require.NoError(t, s.Accounts().PromotePendingEmail(ctx, a.ID))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", got.Email)
	require.Nil(t, got.PendingEmail)
	require.Nil(t, got.EmailChangeCode)
	require.Nil(t, got.EmailChangeExpiresAt)

	// Promoting again without a pending email is a not-found.
	require.ErrorIs(t, s.Accounts().PromotePendingEmail(ctx, a.ID), store.ErrNotFound)
}

func TestPromotePendingEmailCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("a@example.com")
	b := newTestAccount("b@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))
	require.NoError(t, s.Accounts().Create(ctx, b))

	// a wants b's live address.
	expiry := time.Now().Add(15 * time.Minute).UTC()
	require.NoError(t, s.Accounts().SetPendingEmail(ctx, a.ID, "b@example.com", "CHG222", expiry))
	require.ErrorIs(t, s.Accounts().PromotePendingEmail(ctx, a.ID), store.ErrAlreadyExists)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("tok@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	token := "some.refresh.jwt"
	require.NoError(t, s.Accounts().SetRefreshToken(ctx, a.ID, &token))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RefreshToken)
	require.Equal(t, token, *got.RefreshToken)

	require.NoError(t, s.Accounts().SetRefreshToken(ctx, a.ID, nil))
	got, err = s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, got.RefreshToken)
}

func TestUpdateRolesAndFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("roles@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	require.NoError(t, s.Accounts().UpdateRoles(ctx, a.ID, []string{domain.RoleUser, domain.RoleAdmin}))
	require.NoError(t, s.Accounts().SetConfirmedFlag(ctx, a.ID, true))
	require.NoError(t, s.Accounts().SetLockedFlag(ctx, a.ID, false))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleUser, domain.RoleAdmin}, got.Roles)
	require.True(t, got.Confirmed)
	require.False(t, got.Locked)
}

func TestNameFieldUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("names@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	require.NoError(t, s.Accounts().UpdateName(ctx, a.ID, "Janet"))
	require.NoError(t, s.Accounts().UpdateSecondName(ctx, a.ID, "R"))
	require.NoError(t, s.Accounts().UpdateSurName(ctx, a.ID, "Smith"))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Janet", got.Name)
	require.Equal(t, "R", got.SecondName)
	require.Equal(t, "Smith", got.SurName)
}

func TestClearExpiredCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	stale := newTestAccount("stale@example.com")
	fresh := newTestAccount("fresh@example.com")
	require.NoError(t, s.Accounts().Create(ctx, stale))
	require.NoError(t, s.Accounts().Create(ctx, fresh))

	now := time.Now().UTC()
	require.NoError(t, s.Accounts().SetPasswordResetCode(ctx, stale.ID, "OLD111", now.Add(-time.Minute)))
	require.NoError(t, s.Accounts().SetPasswordResetCode(ctx, fresh.ID, "NEW222", now.Add(15*time.Minute)))
	require.NoError(t, s.Accounts().SetPendingEmail(ctx, stale.ID, "stale-new@example.com", "OLD333", now.Add(-time.Minute)))

	require.NoError(t, s.Accounts().ClearExpiredPasswordResetCodes(ctx, now))
	require.NoError(t, s.Accounts().ClearExpiredEmailChangeCodes(ctx, now))

	gotStale, err := s.Accounts().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Nil(t, gotStale.PasswordResetCode)
	require.Nil(t, gotStale.PendingEmail)
	require.Nil(t, gotStale.EmailChangeCode)

	gotFresh, err := s.Accounts().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	require.NotNil(t, gotFresh.PasswordResetCode)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	a := newTestAccount("tx@example.com")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, a); err != nil {
			return err
		}
		return context.Canceled // force rollback
	})
	require.Error(t, err)

	_, err = s.Accounts().GetByID(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Accounts().Create(ctx, newTestAccount("one@example.com")))
	require.NoError(t, s.Accounts().Create(ctx, newTestAccount("two@example.com")))

	all, err := s.Accounts().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
