package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/brightlake/identity/internal/account/store"
)

// HousekeepingService periodically clears expired code columns so stale
// reset and email-change requests do not linger on account rows. The
// ephemeral side needs no sweeping, the cache expires its own entries.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep
// finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup clears each expired column family independently, so a failure
// in one does not stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Store.Accounts().ClearExpiredPasswordResetCodes(ctx, now); err != nil {
		s.Logger.Error("failed to clear expired password reset codes", "error", err)
	}
	if err := s.Store.Accounts().ClearExpiredEmailChangeCodes(ctx, now); err != nil {
		s.Logger.Error("failed to clear expired email change codes", "error", err)
	}

	s.Logger.Debug("housekeeping cleanup completed")
}
