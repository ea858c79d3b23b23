package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository implements Store and AdminStore on PostgreSQL.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository over a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

const permissionColumns = `id, name, display_name, resource_type, resource_key, COALESCE(action, ''), is_enabled, created_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.ResourceType, &p.ResourceKey, &p.Action, &p.Enabled, &p.CreatedAt)
	return p, err
}

// FindPermission prefers the row for the exact action and falls back to the
// action-agnostic row for the resource.
func (r *Repository) FindPermission(ctx context.Context, resourceType ResourceType, resourceKey, action string) (Permission, error) {
	const query = `SELECT ` + permissionColumns + `
FROM permissions
WHERE resource_type = $1 AND resource_key = $2
  AND (action = NULLIF($3, '') OR action IS NULL)
ORDER BY action IS NULL
LIMIT 1`
	p, err := scanPermission(r.q.QueryRow(ctx, query, string(resourceType), resourceKey, action))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: find permission: %w", err)
	}
	return p, nil
}

// RoleGrantsForUser lists every (role, permission) edge reachable through the
// user's roles.
func (r *Repository) RoleGrantsForUser(ctx context.Context, userID int64) ([]RoleGrant, error) {
	rows, err := r.q.Query(ctx, `SELECT rp.role_id, rp.permission_id
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoleGrant, error) {
		var g RoleGrant
		err := row.Scan(&g.RoleID, &g.PermissionID)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: role grants: %w", err)
	}
	return grants, nil
}

// UserOverrides lists the direct grants and denies of a user.
func (r *Repository) UserOverrides(ctx context.Context, userID int64) ([]UserOverride, error) {
	rows, err := r.q.Query(ctx, `SELECT user_id, permission_id, kind FROM user_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user overrides: %w", err)
	}
	overrides, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserOverride, error) {
		var o UserOverride
		err := row.Scan(&o.UserID, &o.PermissionID, &o.Kind)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: user overrides: %w", err)
	}
	return overrides, nil
}

// UserIDsForRole lists the current members of a role.
func (r *Repository) UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("rbac: role members: %w", err)
	}
	return ids, nil
}

// ListPermissions returns permissions ordered by resource.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.q.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY resource_type, resource_key, action NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: list permissions: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	return perms, nil
}

// CreatePermission inserts a permission. Name or (resource, action) clashes
// yield shared.ErrConflict.
func (r *Repository) CreatePermission(ctx context.Context, in NewPermission) (Permission, error) {
	const query = `INSERT INTO permissions (name, display_name, resource_type, resource_key, action)
VALUES ($1, $2, $3, $4, NULLIF($5, ''))
RETURNING ` + permissionColumns
	p, err := scanPermission(r.q.QueryRow(ctx, query, in.Name, in.DisplayName, string(in.ResourceType), in.ResourceKey, in.Action))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permission %q: %w", in.Name, shared.ErrConflict)
		}
		return Permission{}, fmt.Errorf("rbac: create permission: %w", err)
	}
	return p, nil
}

// GrantRolePermission attaches a permission to a role. Re-granting is a no-op.
func (r *Repository) GrantRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return classifyEdgeError("grant role permission", err)
}

// RevokeRolePermission detaches a permission from a role.
func (r *Repository) RevokeRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return classifyEdgeError("revoke role permission", err)
}

// AssignUserRole adds a user to a role.
func (r *Repository) AssignUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.q.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return classifyEdgeError("assign user role", err)
}

// RemoveUserRole removes a user from a role.
func (r *Repository) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return classifyEdgeError("remove user role", err)
}

// SetUserOverride upserts the override for (user, permission); the last write
// wins.
func (r *Repository) SetUserOverride(ctx context.Context, o UserOverride) error {
	_, err := r.q.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, permission_id) DO UPDATE SET kind = EXCLUDED.kind, assigned_at = NOW()`,
		o.UserID, o.PermissionID, string(o.Kind))
	return classifyEdgeError("set user override", err)
}

// RemoveUserOverride deletes the override of the given kind, if present.
func (r *Repository) RemoveUserOverride(ctx context.Context, o UserOverride) error {
	_, err := r.q.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2 AND kind = $3`,
		o.UserID, o.PermissionID, string(o.Kind))
	return classifyEdgeError("remove user override", err)
}

func classifyEdgeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, shared.ErrNotFound)
	default:
		return fmt.Errorf("rbac: %s: %w", op, err)
	}
}

var (
	_ Store      = (*Repository)(nil)
	_ AdminStore = (*Repository)(nil)
)
