// Package service implements the consumer side of profile propagation:
// applying feed snapshots to the local store and serving reads through a
// short-lived cached summary.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/brightlake/identity/internal/feed"
	"github.com/brightlake/identity/internal/profile/domain"
	"github.com/brightlake/identity/internal/profile/store"
	"github.com/brightlake/identity/pkg/cache"
	"github.com/brightlake/identity/pkg/slogx"
)

// DefaultSummaryTTL bounds how stale a cached profile read may be.
const DefaultSummaryTTL = 15 * time.Minute

var (
	ErrNotFound = errors.New("profile_not_found")
)

// Service maintains the local profile store from the feed and answers
// reads through the cache.
type Service struct {
	Store store.Store
	Cache cache.Cache
	TTL   time.Duration
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSummaryTTL
}

func summaryKey(accountID string) string {
	return "profile:" + accountID
}

// Apply upserts one feed snapshot. The cached summary is deleted before
// the durable write: a racing reader then either sees the old cached
// value within its TTL, or misses and repopulates from the committed
// row. It can never re-cache a value older than this write after the
// invalidation. Redelivery is harmless, the upsert is idempotent.
func (s *Service) Apply(ctx context.Context, ev feed.ProfileEvent) error {
	l := slogx.FromContext(ctx)

	if err := s.Cache.Delete(ctx, summaryKey(ev.AccountID)); err != nil {
		return err
	}

	err := s.Store.Profiles().Upsert(ctx, domain.Profile{
		AccountID:  ev.AccountID,
		Name:       ev.Name,
		SecondName: ev.SecondName,
		SurName:    ev.SurName,
		Email:      ev.Email,
	})
	if err != nil {
		return err
	}

	l.Debug("profile snapshot applied",
		slog.String("account_id", ev.AccountID),
		slog.String("event_id", ev.EventID),
	)
	return nil
}

// Get returns the profile for an account, read through the cache.
func (s *Service) Get(ctx context.Context, accountID string) (domain.Profile, error) {
	key := summaryKey(accountID)

	if raw, ok, err := s.Cache.Get(ctx, key); err != nil {
		return domain.Profile{}, err
	} else if ok {
		var p domain.Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		// Unreadable entry, fall through to the store.
		_ = s.Cache.Delete(ctx, key)
	}

	p, err := s.Store.Profiles().Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Profile{}, ErrNotFound
		}
		return domain.Profile{}, err
	}

	if raw, err := json.Marshal(p); err == nil {
		if err := s.Cache.Set(ctx, key, raw, s.ttl()); err != nil {
			slogx.FromContext(ctx).Warn("profile summary cache write failed",
				slog.Any("error", err),
				slog.String("account_id", accountID),
			)
		}
	}
	return p, nil
}

// GetByEmail looks a profile up by its live email, uncached.
func (s *Service) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	p, err := s.Store.Profiles().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Profile{}, ErrNotFound
		}
		return domain.Profile{}, err
	}
	return p, nil
}

// SetAvatar stores an avatar reference, invalidating the summary first.
func (s *Service) SetAvatar(ctx context.Context, accountID, ref string) error {
	if err := s.Cache.Delete(ctx, summaryKey(accountID)); err != nil {
		return err
	}
	if err := s.Store.Profiles().SetAvatar(ctx, accountID, &ref); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ClearAvatar removes the avatar reference, invalidating the summary
// first.
func (s *Service) ClearAvatar(ctx context.Context, accountID string) error {
	if err := s.Cache.Delete(ctx, summaryKey(accountID)); err != nil {
		return err
	}
	if err := s.Store.Profiles().SetAvatar(ctx, accountID, nil); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns every profile, uncached.
func (s *Service) List(ctx context.Context) ([]domain.Profile, error) {
	return s.Store.Profiles().List(ctx)
}
