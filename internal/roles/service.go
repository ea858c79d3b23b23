package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, in NewRole, normalizedName string) (Role, error)
	DeleteRole(ctx context.Context, id int64) ([]int64, error)
}

// Invalidator drops cached permission sets.
type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs []int64) error
}

// Rechecker schedules a delayed repeat of an invalidation.
type Rechecker interface {
	RecheckUsers(ctx context.Context, userIDs ...int64) error
}

// Service handles role business logic.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
	recheck     Rechecker
	logger      *slog.Logger
}

// NewService builds Service instance. recheck may be nil.
func NewService(repo RepositoryPort, invalidator Invalidator, recheck Rechecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, recheck: recheck, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, shared.Unavailable("roles: list", err)
	}
	return roles, nil
}

// CreateRole adds a role. A new role has no members, so nothing is invalidated.
func (s *Service) CreateRole(ctx context.Context, in NewRole) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	normalized := shared.NormalizeName(in.Name)
	if normalized == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, in, normalized)
	if err != nil {
		return Role{}, passthrough("roles: create", err)
	}
	return role, nil
}

// DeleteRole removes a role and invalidates everyone who held it. System
// roles cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	members, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return passthrough("roles: delete", err)
	}
	if err := s.invalidator.InvalidateUsers(ctx, members); err != nil {
		return err
	}
	if s.recheck != nil && len(members) > 0 {
		if err := s.recheck.RecheckUsers(ctx, members...); err != nil {
			s.logger.Warn("roles schedule recheck", slog.Int64("role_id", id), slog.Any("error", err))
		}
	}
	return nil
}

func passthrough(op string, err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrProtected):
		return err
	default:
		return shared.Unavailable(op, err)
	}
}
