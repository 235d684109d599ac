package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brightlake/identity/internal/feed"
	"github.com/brightlake/identity/internal/profile/store/drivers/sqlite"
	"github.com/brightlake/identity/pkg/cache"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := &fakeClock{now: time.Now()}
	mem := cache.NewMemory(cache.WithClock(clock.Now))
	t.Cleanup(func() { _ = mem.Close() })

	return &Service{Store: st, Cache: mem}, clock
}

func snapshot(accountID, name, secondName, surName, email string) feed.ProfileEvent {
	return feed.NewProfileEvent(accountID, name, secondName, surName, email)
}

func TestApplyCreatesAndUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestService(t)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")))

	p, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "Jane", p.Name)
	require.Equal(t, "jane@x.com", p.Email)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Janet", "Q", "Doe", "jane@x.com")))

	p, err = s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "Janet", p.Name)
}

func TestApplyBlankFieldsKeepStoredValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestService(t)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")))

	// An email-only snapshot must not blank the names.
	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "", "", "", "new@x.com")))

	p, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "Jane", p.Name)
	require.Equal(t, "Q", p.SecondName)
	require.Equal(t, "Doe", p.SurName)
	require.Equal(t, "new@x.com", p.Email)
}

func TestApplyIsIdempotentUnderRedelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestService(t)

	ev := snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")
	require.NoError(t, s.Apply(ctx, ev))
	require.NoError(t, s.Apply(ctx, ev))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Jane", all[0].Name)
}

func TestApplyInvalidatesBeforeUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestService(t)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")))

	// Populate the cache.
	_, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Janet", "Q", "Doe", "jane@x.com")))

	// The very next read must not see the pre-update cached value.
	p, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "Janet", p.Name)
}

func TestGetReadThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, clock := newTestService(t)

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")))

	// First read populates the cache; a direct store write afterwards is
	// invisible until the summary expires.
	_, err = s.Get(ctx, "acct-1")
	require.NoError(t, err)

	stored, err := s.Store.Profiles().Get(ctx, "acct-1")
	require.NoError(t, err)
	stored.Name = "Shadow"
	require.NoError(t, s.Store.Profiles().Upsert(ctx, stored))

	p, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "Jane", p.Name)

	clock.Advance(DefaultSummaryTTL + time.Second)
	p, err = s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "Shadow", p.Name)
}

func TestGetByEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestService(t)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")))

	p, err := s.GetByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	require.Equal(t, "acct-1", p.AccountID)

	_, err = s.GetByEmail(ctx, "ghost@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAvatarLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestService(t)

	require.ErrorIs(t, s.SetAvatar(ctx, "missing", "blob://a"), ErrNotFound)

	require.NoError(t, s.Apply(ctx, snapshot("acct-1", "Jane", "Q", "Doe", "jane@x.com")))
	require.NoError(t, s.SetAvatar(ctx, "acct-1", "blob://a"))

	p, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, p.AvatarRef)
	require.Equal(t, "blob://a", *p.AvatarRef)

	require.NoError(t, s.ClearAvatar(ctx, "acct-1"))
	p, err = s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Nil(t, p.AvatarRef)
}
