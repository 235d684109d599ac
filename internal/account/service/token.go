package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/brightlake/identity/internal/account/domain"
	"github.com/brightlake/identity/internal/account/store"
	"github.com/brightlake/identity/pkg/cryptox"
	"github.com/brightlake/identity/pkg/jwtx"
	"github.com/brightlake/identity/pkg/slogx"
)

// TokenService issues, renews and revokes the signed token pair. At most
// one refresh token is live per account at any time; it is persisted on
// the account row and equality-checked on renewal.
type TokenService struct {
	Store       store.Store
	Signer      jwtx.Signer
	Verifier    jwtx.Verifier
	Revocations *RevocationList
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	// Now overrides the time source. Nil means time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) mint(a domain.Account, use string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwtx.NewClaims(use, a.ID, a.Email, a.Roles, a.Confirmed, a.Locked, ttl, s.Issuer, now)
	return s.Signer.Sign(claims)
}

// issue mints a fresh pair and persists the refresh token, overwriting
// any prior one.
func (s *TokenService) issue(ctx context.Context, a domain.Account, now time.Time) (*domain.TokenPair, error) {
	access, err := s.mint(a, jwtx.UseAccess, s.AccessTTL, now)
	if err != nil {
		return nil, err
	}
	refresh, err := s.mint(a, jwtx.UseRefresh, s.RefreshTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Accounts().SetRefreshToken(ctx, a.ID, &refresh); err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

// SignIn verifies credentials and returns a token pair. If the account
// already holds a cryptographically valid refresh token, that session is
// continued rather than replaced.
func (s *TokenService) SignIn(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	a, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, a.PasswordHash); err != nil {
		l.Info("sign-in password mismatch", slog.String("account_id", a.ID))
		return nil, ErrInvalidCredentials
	}

	if !a.Confirmed || a.Locked {
		return nil, ErrAccountNotConfirmed
	}

	if a.RefreshToken != nil {
		if _, err := jwtx.VerifyUse(s.Verifier, *a.RefreshToken, jwtx.UseRefresh); err == nil {
			access, err := s.mint(a, jwtx.UseAccess, s.AccessTTL, now)
			if err != nil {
				return nil, err
			}
			return &domain.TokenPair{
				AccessToken:  access,
				RefreshToken: *a.RefreshToken,
				TokenType:    "Bearer",
				ExpiresIn:    int64(s.AccessTTL.Seconds()),
			}, nil
		}
	}

	return s.issue(ctx, a, now)
}

// Refresh exchanges a live refresh token for a new pair. The presented
// token must verify and must equal the token persisted on the account,
// so a superseded token can never be replayed.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	now := s.now()

	claims, err := jwtx.VerifyUse(s.Verifier, refreshToken, jwtx.UseRefresh)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	a, err := s.Store.Accounts().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if a.RefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(*a.RefreshToken), []byte(refreshToken)) != 1 {
		return nil, ErrInvalidRefresh
	}
	if !a.Confirmed || a.Locked {
		return nil, ErrInvalidRefresh
	}

	return s.issue(ctx, a, now)
}

// Logout kills the presented access token for the rest of its lifetime.
// The refresh token survives, so the session can be resumed.
func (s *TokenService) Logout(ctx context.Context, accessToken string) error {
	claims, err := jwtx.VerifyUse(s.Verifier, accessToken, jwtx.UseAccess)
	if err != nil {
		return ErrInvalidCredentials
	}
	return s.Revocations.RevokeToken(ctx, accessToken, claims.Remaining(s.now()))
}

// FullLogout ends the whole session: the persisted refresh token is
// cleared and the presented access token is revoked immediately.
func (s *TokenService) FullLogout(ctx context.Context, accessToken string) error {
	claims, err := jwtx.VerifyUse(s.Verifier, accessToken, jwtx.UseAccess)
	if err != nil {
		return ErrInvalidCredentials
	}

	if err := s.Store.Accounts().SetRefreshToken(ctx, claims.Subject, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.Revocations.RevokeToken(ctx, accessToken, claims.Remaining(s.now()))
}

// InvalidateSessions force-ends every session for an account: the refresh
// token is cleared and the account id goes on the block set for one full
// refresh lifetime, long enough to outlive any token minted before the
// call. The block is stamped with the current instant, so pairs minted
// afterwards, for example after a fresh sign-in, stay trusted.
func (s *TokenService) InvalidateSessions(ctx context.Context, accountID string) error {
	if err := s.Store.Accounts().SetRefreshToken(ctx, accountID, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.Revocations.BlockAccount(ctx, accountID, s.now(), s.RefreshTTL)
}

// ReinstateSessions reverses an administrative invalidation once the
// account returns to good standing: the account-level block is lifted.
// The refresh token stays cleared, so the holder still has to sign in
// again, but the fresh pair is trusted immediately.
func (s *TokenService) ReinstateSessions(ctx context.Context, accountID string) error {
	if err := s.Store.Accounts().SetRefreshToken(ctx, accountID, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.Revocations.Unblock(ctx, accountID)
}

// Authenticate validates an access token for request handling. All three
// checks must pass: signature and expiry, absence from the per-token
// revoked set, and no account-level block newer than the token.
func (s *TokenService) Authenticate(ctx context.Context, accessToken string) (domain.Authz, error) {
	claims, err := jwtx.VerifyUse(s.Verifier, accessToken, jwtx.UseAccess)
	if err != nil {
		return domain.Authz{}, ErrInvalidCredentials
	}

	revoked, err := s.Revocations.IsRevoked(ctx, accessToken)
	if err != nil {
		return domain.Authz{}, err
	}
	if revoked {
		return domain.Authz{}, ErrTokenRevoked
	}

	since, blocked, err := s.Revocations.BlockedSince(ctx, claims.Subject)
	if err != nil {
		return domain.Authz{}, err
	}
	if blocked && mintedBefore(claims, since) {
		return domain.Authz{}, ErrTokenRevoked
	}

	return domain.Authz{AccountID: claims.Subject, Roles: claims.Roles}, nil
}

// mintedBefore reports whether the token predates the block instant. The
// iat claim carries second precision, so the comparison happens on whole
// seconds; a token without iat is always treated as predating.
func mintedBefore(claims jwtx.Claims, since time.Time) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return claims.IssuedAt.Unix() < since.Unix()
}
