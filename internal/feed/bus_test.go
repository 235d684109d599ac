package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPublishReachesSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus(testLogger())

	got := make(chan ProfileEvent, 1)
	bus.Subscribe(func(ctx context.Context, ev ProfileEvent) error {
		got <- ev
		return nil
	})

	ev := NewProfileEvent("acct-1", "Jane", "Q", "Doe", "jane@example.com")
	require.NoError(t, bus.PublishProfile(context.Background(), ev))

	select {
	case delivered := <-got:
		require.Equal(t, ev.EventID, delivered.EventID)
		require.Equal(t, "acct-1", delivered.AccountID)
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}

	require.NoError(t, bus.Close())
}

func TestRedeliversAfterHandlerError(t *testing.T) {
	t.Parallel()

	bus := NewBus(testLogger(), WithRetryBackoff(time.Millisecond), WithMaxAttempts(5))

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	bus.Subscribe(func(ctx context.Context, ev ProfileEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient store failure")
		}
		close(done)
		return nil
	})

	require.NoError(t, bus.PublishProfile(context.Background(), NewProfileEvent("acct-1", "Jane", "", "", "")))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event never succeeded after retries")
	}

	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()

	require.NoError(t, bus.Close())
}

func TestDropsAfterAttemptBudget(t *testing.T) {
	t.Parallel()

	bus := NewBus(testLogger(), WithRetryBackoff(time.Millisecond), WithMaxAttempts(2))

	var mu sync.Mutex
	attempts := 0
	bus.Subscribe(func(ctx context.Context, ev ProfileEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("permanent failure")
	})

	require.NoError(t, bus.PublishProfile(context.Background(), NewProfileEvent("acct-1", "", "", "", "")))
	require.NoError(t, bus.Close()) // Close drains the queue first

	mu.Lock()
	require.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestPublishAfterCloseFails(t *testing.T) {
	t.Parallel()

	bus := NewBus(testLogger())
	require.NoError(t, bus.Close())

	err := bus.PublishProfile(context.Background(), NewProfileEvent("acct-1", "", "", "", ""))
	require.ErrorIs(t, err, ErrBusClosed)
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(testLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	for range 2 {
		bus.Subscribe(func(ctx context.Context, ev ProfileEvent) error {
			wg.Done()
			return nil
		})
	}

	require.NoError(t, bus.PublishProfile(context.Background(), NewProfileEvent("acct-1", "", "", "", "")))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all subscribers saw the event")
	}

	require.NoError(t, bus.Close())
}
