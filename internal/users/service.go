package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in NewUser, normalizedName, passwordHash string) (User, error)
	SetStatus(ctx context.Context, id int64, status Status) (User, error)
	// SetPassword stores a new hash and revokes every active refresh token
	// of the user in one transaction.
	SetPassword(ctx context.Context, id int64, passwordHash string) error
}

// Page is one page of users.
type Page struct {
	Items      []User            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
	hash func(string) (string, error)
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, hash: auth.HashPassword}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) (Page, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	p := shared.Pagination{Page: page, PerPage: perPage}
	users, total, err := s.repo.ListUsers(ctx, perPage, p.Offset())
	if err != nil {
		return Page{}, shared.Unavailable("users: list", err)
	}
	return Page{Items: users, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, passthrough("users: get", err)
	}
	return user, nil
}

// CreateUser hashes the password and stores a new account. Usernames are
// unique case-insensitively.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	normalized := shared.NormalizeName(in.Username)
	if normalized == "" {
		return User{}, fmt.Errorf("%w: username is required", shared.ErrValidation)
	}
	if err := auth.CheckPasswordLength(in.Password); err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, in, normalized, hash)
	if err != nil {
		return User{}, passthrough("users: create", err)
	}
	return user, nil
}

// SetStatus enables, disables, locks or unlocks an account. Outstanding
// refresh tokens stop rotating on their next use.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (User, error) {
	user, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return User{}, passthrough("users: set status", err)
	}
	return user, nil
}

// SetPassword replaces the password of an account. Refresh tokens issued
// before the change stop working; access tokens run until they expire.
func (s *Service) SetPassword(ctx context.Context, id int64, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}
	if err := auth.CheckPasswordLength(password); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, id, hash); err != nil {
		return passthrough("users: set password", err)
	}
	return nil
}

func passthrough(op string, err error) error {
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrConflict) {
		return err
	}
	return shared.Unavailable(op, err)
}
