package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// AdminStore is the write side of role and override management.
type AdminStore interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, in NewPermission) (Permission, error)
	GrantRolePermission(ctx context.Context, roleID, permissionID int64) error
	RevokeRolePermission(ctx context.Context, roleID, permissionID int64) error
	AssignUserRole(ctx context.Context, userID, roleID int64) error
	RemoveUserRole(ctx context.Context, userID, roleID int64) error
	SetUserOverride(ctx context.Context, o UserOverride) error
	RemoveUserOverride(ctx context.Context, o UserOverride) error
}

// Rechecker schedules a second, delayed invalidation after a mutation. It
// evicts sets that a concurrent reader recomputed from pre-mutation edges.
type Rechecker interface {
	RecheckUsers(ctx context.Context, userIDs ...int64) error
	RecheckRole(ctx context.Context, roleID int64) error
}

// Service orchestrates RBAC mutations. Every mutation invalidates the
// affected cached sets before returning.
type Service struct {
	store    AdminStore
	resolver *Resolver
	recheck  Rechecker
	logger   *slog.Logger
}

// NewService constructs a Service. recheck may be nil.
func NewService(store AdminStore, resolver *Resolver, recheck Rechecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, recheck: recheck, logger: logger}
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, storeErr("rbac: list permissions", err)
	}
	return perms, nil
}

// CreatePermission registers a new permission. A new permission is held by
// nobody, so no cache entry changes.
func (s *Service) CreatePermission(ctx context.Context, in NewPermission) (Permission, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ResourceKey = strings.TrimSpace(in.ResourceKey)
	in.Action = strings.TrimSpace(in.Action)
	if in.Name == "" || in.ResourceKey == "" {
		return Permission{}, fmt.Errorf("%w: name and resource key are required", shared.ErrValidation)
	}
	resourceType, err := ParseResourceType(string(in.ResourceType))
	if err != nil {
		return Permission{}, err
	}
	in.ResourceType = resourceType
	// api actions are matched against r.Method
	if resourceType == ResourceAPI {
		in.Action = strings.ToUpper(in.Action)
	}
	perm, err := s.store.CreatePermission(ctx, in)
	if err != nil {
		return Permission{}, storeErr("rbac: create permission", err)
	}
	return perm, nil
}

// GrantRolePermission attaches a permission to a role and invalidates every
// member of the role.
func (s *Service) GrantRolePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.GrantRolePermission(ctx, roleID, permissionID); err != nil {
		return storeErr("rbac: grant role permission", err)
	}
	return s.afterRoleChange(ctx, roleID)
}

// RevokeRolePermission detaches a permission from a role and invalidates every
// member of the role.
func (s *Service) RevokeRolePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.RevokeRolePermission(ctx, roleID, permissionID); err != nil {
		return storeErr("rbac: revoke role permission", err)
	}
	return s.afterRoleChange(ctx, roleID)
}

// AssignUserRole adds the user to the role.
func (s *Service) AssignUserRole(ctx context.Context, userID, roleID int64) error {
	if err := s.store.AssignUserRole(ctx, userID, roleID); err != nil {
		return storeErr("rbac: assign user role", err)
	}
	return s.afterUserChange(ctx, userID)
}

// RemoveUserRole removes the user from the role.
func (s *Service) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	if err := s.store.RemoveUserRole(ctx, userID, roleID); err != nil {
		return storeErr("rbac: remove user role", err)
	}
	return s.afterUserChange(ctx, userID)
}

// SetUserOverride grants or denies one permission directly to a user.
func (s *Service) SetUserOverride(ctx context.Context, o UserOverride) error {
	if _, err := ParseOverrideKind(string(o.Kind)); err != nil {
		return err
	}
	if err := s.store.SetUserOverride(ctx, o); err != nil {
		return storeErr("rbac: set user override", err)
	}
	return s.afterUserChange(ctx, o.UserID)
}

// RemoveUserOverride deletes a direct grant or deny.
func (s *Service) RemoveUserOverride(ctx context.Context, o UserOverride) error {
	if _, err := ParseOverrideKind(string(o.Kind)); err != nil {
		return err
	}
	if err := s.store.RemoveUserOverride(ctx, o); err != nil {
		return storeErr("rbac: remove user override", err)
	}
	return s.afterUserChange(ctx, o.UserID)
}

func (s *Service) afterRoleChange(ctx context.Context, roleID int64) error {
	if err := s.resolver.InvalidateForRole(ctx, roleID); err != nil {
		return err
	}
	if s.recheck != nil {
		if err := s.recheck.RecheckRole(ctx, roleID); err != nil {
			s.logger.Warn("rbac schedule role recheck", slog.Int64("role_id", roleID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) afterUserChange(ctx context.Context, userID int64) error {
	if err := s.resolver.Invalidate(ctx, userID); err != nil {
		return err
	}
	if s.recheck != nil {
		if err := s.recheck.RecheckUsers(ctx, userID); err != nil {
			s.logger.Warn("rbac schedule user recheck", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	return nil
}

// storeErr passes domain errors through and marks everything else as an
// unavailable store.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrUnavailable):
		return err
	default:
		return shared.Unavailable(op, err)
	}
}
