package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/juju/clock"

	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Service wraps authentication business rules: login, refresh and logout.
type Service struct {
	users   UserStore
	issuer  *Issuer
	clock   clock.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs a new Service.
func NewService(users UserStore, issuer *Issuer, clk clock.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, issuer: issuer, clock: clk, logger: logger, metrics: metrics}
}

// Login validates username/password credentials and issues a token pair.
// Unknown users, wrong passwords and disabled or locked accounts are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	name := shared.NormalizeName(username)
	if name == "" || password == "" {
		burnPasswordCheck(password)
		s.metrics.ObserveLogin("invalid")
		return TokenPair{}, shared.ErrInvalidCredentials
	}
	user, err := s.users.FindUserByName(ctx, name)
	if errors.Is(err, shared.ErrNotFound) {
		burnPasswordCheck(password)
		s.metrics.ObserveLogin("invalid")
		return TokenPair{}, shared.ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.ObserveLogin("error")
		return TokenPair{}, shared.Unavailable("auth: load user", err)
	}
	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil {
		s.logger.Error("verify password", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	if !ok || !user.CanAuthenticate() {
		s.metrics.ObserveLogin("invalid")
		return TokenPair{}, shared.ErrInvalidCredentials
	}

	roles, err := s.users.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return TokenPair{}, shared.Unavailable("auth: load roles", err)
	}
	access, err := s.issuer.IssueAccessToken(user.ID, user.Username, roles)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return TokenPair{}, err
	}
	refresh, err := s.issuer.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return TokenPair{}, err
	}
	if err := s.users.RecordLogin(ctx, user.ID, s.clock.Now().UTC()); err != nil {
		s.logger.Warn("record last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	s.metrics.ObserveLogin("success")
	return TokenPair{
		AccessToken:           access.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          refresh.Value,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		TokenType:             "Bearer",
	}, nil
}

// Refresh rotates a refresh token into a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.issuer.Rotate(ctx, refreshToken)
}

// Logout revokes a refresh token. Unknown, expired and revoked tokens
// succeed; only an unavailable store is reported.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.issuer.Revoke(ctx, refreshToken)
}
