package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const (
	// DefaultAccessTTL is the lifetime of an access token.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the lifetime of a refresh token.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// MinSigningKeyLen is the shortest accepted HS256 key.
	MinSigningKeyLen = 32

	refreshSecretBytes = 32

	claimUserID = "uid"
	claimRoles  = "roles"
)

// TokenStore persists refresh tokens.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, t RefreshToken) (RefreshToken, error)
	// FindRefreshToken returns shared.ErrNotFound for an unknown hash.
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	// RotateRefreshToken revokes oldID and inserts next atomically. It
	// reports false without inserting when oldID was no longer active at now.
	RotateRefreshToken(ctx context.Context, oldID int64, now time.Time, next RefreshToken) (bool, error)
	// RevokeRefreshToken revokes the active token with the given hash. An
	// unknown, expired or revoked token is left untouched without error.
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error
	RevokeRefreshTokenByID(ctx context.Context, id int64, now time.Time) error
}

// UserStore reads the accounts tokens are issued for.
type UserStore interface {
	// FindUserByID and FindUserByName return shared.ErrNotFound when absent.
	FindUserByID(ctx context.Context, id int64) (User, error)
	FindUserByName(ctx context.Context, normalizedName string) (User, error)
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	RecordLogin(ctx context.Context, userID int64, at time.Time) error
}

// IssuerConfig configures token signing and lifetimes.
type IssuerConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer mints, rotates and revokes tokens.
type Issuer struct {
	tokens  TokenStore
	users   UserStore
	clock   clock.Clock
	cfg     IssuerConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIssuer validates cfg and builds an Issuer. A nil clock uses wall time.
func NewIssuer(cfg IssuerConfig, tokens TokenStore, users UserStore, clk clock.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Issuer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLen {
		return nil, fmt.Errorf("auth: signing key must be at least %d bytes", MinSigningKeyLen)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("auth: refresh ttl must exceed access ttl")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{tokens: tokens, users: users, clock: clk, cfg: cfg, logger: logger, metrics: metrics}, nil
}

// IssueAccessToken signs a short-lived JWT carrying the user's identity and
// one roles entry per held role.
func (i *Issuer) IssueAccessToken(userID int64, username string, roleNames []string) (IssuedToken, error) {
	now := i.clock.Now().UTC().Truncate(time.Second)
	expires := now.Add(i.cfg.AccessTTL)
	jti := uuid.NewString()
	if roleNames == nil {
		roleNames = []string{}
	}

	builder := jwt.NewBuilder().
		JwtID(jti).
		Subject(username).
		IssuedAt(now).
		Expiration(expires).
		Claim(claimUserID, userID).
		Claim(claimRoles, roleNames)
	if i.cfg.Issuer != "" {
		builder = builder.Issuer(i.cfg.Issuer)
	}
	if i.cfg.Audience != "" {
		builder = builder.Audience([]string{i.cfg.Audience})
	}
	token, err := builder.Build()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: build access token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.cfg.SigningKey))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	return IssuedToken{Value: string(signed), ID: jti, ExpiresAt: expires}, nil
}

// ParseAccessToken verifies signature, issuer, audience and expiry.
func (i *Issuer) ParseAccessToken(raw string) (Claims, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, i.cfg.SigningKey),
		jwt.WithValidate(true),
		jwt.WithClock(i.clock),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}
	if i.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(i.cfg.Audience))
	}
	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	claims := Claims{
		ID:        token.JwtID(),
		Username:  token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	uid, ok := token.Get(claimUserID)
	if !ok {
		return Claims{}, fmt.Errorf("%w: missing %s claim", shared.ErrInvalidToken, claimUserID)
	}
	switch v := uid.(type) {
	case float64:
		claims.UserID = int64(v)
	case int64:
		claims.UserID = v
	default:
		return Claims{}, fmt.Errorf("%w: malformed %s claim", shared.ErrInvalidToken, claimUserID)
	}
	if rawRoles, ok := token.Get(claimRoles); ok {
		switch roles := rawRoles.(type) {
		case []string:
			claims.Roles = roles
		case []any:
			for _, r := range roles {
				if name, ok := r.(string); ok {
					claims.Roles = append(claims.Roles, name)
				}
			}
		}
	}
	return claims, nil
}

// IssueRefreshToken mints a new opaque refresh token and persists its hash.
func (i *Issuer) IssueRefreshToken(ctx context.Context, userID int64) (IssuedToken, error) {
	value, record, err := i.newRefreshToken(userID, i.clock.Now().UTC())
	if err != nil {
		return IssuedToken{}, err
	}
	if _, err := i.tokens.CreateRefreshToken(ctx, record); err != nil {
		return IssuedToken{}, shared.Unavailable("auth: store refresh token", err)
	}
	return IssuedToken{Value: value, ExpiresAt: record.ExpiresAt}, nil
}

// Rotate exchanges an active refresh token for a new token pair. The old
// token is consumed: presenting it again yields shared.ErrTokenReused.
func (i *Issuer) Rotate(ctx context.Context, oldValue string) (TokenPair, error) {
	if strings.TrimSpace(oldValue) == "" {
		return TokenPair{}, shared.ErrInvalidToken
	}
	current, err := i.tokens.FindRefreshToken(ctx, HashToken(oldValue))
	if errors.Is(err, shared.ErrNotFound) {
		i.metrics.ObserveTokenRotation(observability.RotationInvalid)
		return TokenPair{}, shared.ErrInvalidToken
	}
	if err != nil {
		i.metrics.ObserveTokenRotation(observability.RotationError)
		return TokenPair{}, shared.Unavailable("auth: find refresh token", err)
	}

	now := i.clock.Now().UTC()
	if current.Revoked() {
		return TokenPair{}, i.replayDetected(current, "revoked token presented")
	}
	if current.ExpiredAt(now) {
		i.metrics.ObserveTokenRotation(observability.RotationInvalid)
		return TokenPair{}, shared.ErrInvalidToken
	}

	user, err := i.users.FindUserByID(ctx, current.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		i.revokeQuietly(ctx, current, now)
		i.metrics.ObserveTokenRotation(observability.RotationUserMissing)
		return TokenPair{}, shared.ErrUserNotFound
	}
	if err != nil {
		i.metrics.ObserveTokenRotation(observability.RotationError)
		return TokenPair{}, shared.Unavailable("auth: load token owner", err)
	}
	if !user.CanAuthenticate() {
		i.revokeQuietly(ctx, current, now)
		i.metrics.ObserveTokenRotation(observability.RotationInvalid)
		return TokenPair{}, shared.ErrInvalidToken
	}
	roles, err := i.users.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		i.metrics.ObserveTokenRotation(observability.RotationError)
		return TokenPair{}, shared.Unavailable("auth: load roles", err)
	}

	access, err := i.IssueAccessToken(user.ID, user.Username, roles)
	if err != nil {
		return TokenPair{}, err
	}
	value, next, err := i.newRefreshToken(user.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	rotated, err := i.tokens.RotateRefreshToken(ctx, current.ID, now, next)
	if err != nil {
		i.metrics.ObserveTokenRotation(observability.RotationError)
		return TokenPair{}, shared.Unavailable("auth: rotate refresh token", err)
	}
	if !rotated {
		return TokenPair{}, i.replayDetected(current, "concurrent rotation lost")
	}

	i.metrics.ObserveTokenRotation(observability.RotationOK)
	return TokenPair{
		AccessToken:           access.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          value,
		RefreshTokenExpiresAt: next.ExpiresAt,
		TokenType:             "Bearer",
	}, nil
}

// Revoke makes a refresh token unusable. Unknown, expired and already
// revoked values succeed.
func (i *Issuer) Revoke(ctx context.Context, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if err := i.tokens.RevokeRefreshToken(ctx, HashToken(value), i.clock.Now().UTC()); err != nil {
		return shared.Unavailable("auth: revoke refresh token", err)
	}
	return nil
}

func (i *Issuer) replayDetected(t RefreshToken, reason string) error {
	i.logger.Error("refresh token reuse detected",
		slog.Int64("user_id", t.UserID),
		slog.Int64("token_id", t.ID),
		slog.String("reason", reason))
	i.metrics.ObserveTokenRotation(observability.RotationReused)
	return shared.ErrTokenReused
}

func (i *Issuer) revokeQuietly(ctx context.Context, t RefreshToken, now time.Time) {
	if err := i.tokens.RevokeRefreshTokenByID(ctx, t.ID, now); err != nil {
		i.logger.Warn("revoke refresh token", slog.Int64("token_id", t.ID), slog.Any("error", err))
	}
}

func (i *Issuer) newRefreshToken(userID int64, now time.Time) (string, RefreshToken, error) {
	secret := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", RefreshToken{}, fmt.Errorf("auth: refresh token entropy: %w", err)
	}
	id := uuid.New()
	value := hex.EncodeToString(id[:]) + "." + base64.RawURLEncoding.EncodeToString(secret)
	return value, RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(value),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.RefreshTTL),
	}, nil
}

// HashToken is the lookup key stored for an opaque refresh token value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
