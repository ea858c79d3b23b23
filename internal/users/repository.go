package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, COALESCE(email, ''), is_enabled, is_locked, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Enabled, &u.Locked, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	return u, err
}

// ListUsers returns one page of users and the total count.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users := make([]User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return user, err
}

// CreateUser inserts a user with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, in NewUser, normalizedName, passwordHash string) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `INSERT INTO users (username, normalized_name, email, password_hash)
VALUES ($1, $2, NULLIF($3, ''), $4)
RETURNING `+userColumns, in.Username, normalizedName, in.Email, passwordHash))
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("username %q: %w", in.Username, shared.ErrConflict)
	}
	return user, err
}

// SetStatus updates the enabled and locked flags.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `UPDATE users SET is_enabled = $2, is_locked = $3, updated_at = NOW()
WHERE id = $1 RETURNING `+userColumns, id, status.Enabled, status.Locked))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return user, err
}

// SetPassword stores a new hash and revokes the user's active refresh tokens.
func (r *Repository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
		}
		_, err = tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`, id)
		return err
	})
}

var _ RepositoryPort = (*Repository)(nil)
