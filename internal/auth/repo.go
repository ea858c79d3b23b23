package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// PGRepository implements TokenStore and UserStore using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, username, COALESCE(email, ''), password_hash, is_enabled, is_locked, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Enabled, &u.Locked, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// FindUserByID fetches a user by id.
func (r *PGRepository) FindUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindUserByName fetches a user by normalized username.
func (r *PGRepository) FindUserByName(ctx context.Context, normalizedName string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE normalized_name = $1`, normalizedName))
}

// RoleNamesForUser lists the names of the roles a user holds.
func (r *PGRepository) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT ro.name FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id WHERE ur.user_id = $1 ORDER BY ro.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// RecordLogin stamps the last successful login.
func (r *PGRepository) RecordLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	return err
}

// CreateRefreshToken persists a refresh token hash.
func (r *PGRepository) CreateRefreshToken(ctx context.Context, t RefreshToken) (RefreshToken, error) {
	return insertRefreshToken(ctx, r.pool, t)
}

func insertRefreshToken(ctx context.Context, q db.Querier, t RefreshToken) (RefreshToken, error) {
	err := q.QueryRow(ctx, `INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at)
VALUES ($1, $2, $3, $4) RETURNING id`, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt).Scan(&t.ID)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	return t, nil
}

// FindRefreshToken looks a token up by hash.
func (r *PGRepository) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	var t RefreshToken
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at
FROM refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, shared.ErrNotFound
	}
	if err != nil {
		return RefreshToken{}, err
	}
	return t, nil
}

// RotateRefreshToken revokes oldID and inserts next in one transaction. The
// revoke is a compare-and-set: if another rotation or logout got there first
// no row matches and nothing is inserted.
func (r *PGRepository) RotateRefreshToken(ctx context.Context, oldID int64, now time.Time, next RefreshToken) (bool, error) {
	rotated := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2
WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2`, oldID, now)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := insertRefreshToken(ctx, tx, next); err != nil {
			return err
		}
		rotated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return rotated, nil
}

// RevokeRefreshToken revokes an active token by hash.
func (r *PGRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash, now)
	return err
}

// RevokeRefreshTokenByID revokes an active token by id.
func (r *PGRepository) RevokeRefreshTokenByID(ctx context.Context, id int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2
WHERE id = $1 AND revoked_at IS NULL`, id, now)
	return err
}

var (
	_ TokenStore = (*PGRepository)(nil)
	_ UserStore  = (*PGRepository)(nil)
)
