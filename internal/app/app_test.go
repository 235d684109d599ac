package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brightlake/identity/internal/account/domain"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Issuer:               "identity-test",
		AccountDBFile:        ":memory:",
		ProfileDBFile:        ":memory:",
		PepperFile:           filepath.Join(dir, "pepper"),
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           7 * 24 * time.Hour,
		CodeTTL:              24 * time.Hour,
		HousekeepingInterval: time.Hour,
		ShutdownGracePeriod:  5 * time.Second,
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "brightlake-identity", cfg.Issuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 24*time.Hour, cfg.CodeTTL)
}

func TestRegistrationPropagatesToProfileSide(t *testing.T) {
	ctx := context.Background()

	application, err := New(testConfig(t))
	require.NoError(t, err)
	application.housekeeping.Start()

	a, err := application.Accounts().Register(ctx, "jane@x.com", "password123", "Jane", "Q", "Doe")
	require.NoError(t, err)

	ok, err := application.Accounts().Confirm(ctx, *a.ConfirmationCode)
	require.NoError(t, err)
	require.True(t, ok)

	pair, err := application.Tokens().SignIn(ctx, "jane@x.com", "password123")
	require.NoError(t, err)

	authz, err := application.Tokens().Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, a.ID, authz.AccountID)

	// The feed delivers asynchronously.
	require.Eventually(t, func() bool {
		_, err := application.Profiles().Get(ctx, a.ID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	p, err := application.Profiles().Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Jane", p.Name)
	require.Equal(t, "jane@x.com", p.Email)

	require.NoError(t, application.Shutdown())
}

func TestNameChangePropagates(t *testing.T) {
	ctx := context.Background()

	application, err := New(testConfig(t))
	require.NoError(t, err)
	application.housekeeping.Start()

	a, err := application.Accounts().Register(ctx, "rename@x.com", "password123", "Jane", "Q", "Doe")
	require.NoError(t, err)

	authz := domain.Authz{AccountID: a.ID, Roles: a.Roles}
	require.NoError(t, application.Accounts().UpdateName(ctx, authz, a.ID, "Janet"))

	require.Eventually(t, func() bool {
		p, err := application.Profiles().Get(ctx, a.ID)
		return err == nil && p.Name == "Janet"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, application.Shutdown())
}
