package roles

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

const roleColumns = `id, name, description, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.System, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// CreateRole inserts a new role. Names are unique case-insensitively.
func (r *Repository) CreateRole(ctx context.Context, in NewRole, normalizedName string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (name, normalized_name, description)
VALUES ($1, $2, $3) RETURNING `+roleColumns, in.Name, normalizedName, in.Description))
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("role %q: %w", in.Name, shared.ErrConflict)
	}
	return role, err
}

// DeleteRole removes a non-system role and returns the users who held it.
// Members are read under the role's row lock so none can join unseen.
func (r *Repository) DeleteRole(ctx context.Context, id int64) ([]int64, error) {
	var members []int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var system bool
		err := tx.QueryRow(ctx, `SELECT is_system FROM roles WHERE id = $1 FOR UPDATE`, id).Scan(&system)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if system {
			return fmt.Errorf("role %d is a system role: %w", id, shared.ErrProtected)
		}
		rows, err := tx.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, id)
		if err != nil {
			return err
		}
		members, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

var _ RepositoryPort = (*Repository)(nil)
