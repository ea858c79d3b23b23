package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// ResourceType classifies what a permission protects.
type ResourceType string

const (
	ResourceAPI    ResourceType = "api"
	ResourceMenu   ResourceType = "menu"
	ResourceButton ResourceType = "button"
)

// ParseResourceType accepts the three known types case-insensitively.
func ParseResourceType(raw string) (ResourceType, error) {
	switch t := ResourceType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ResourceAPI, ResourceMenu, ResourceButton:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown resource type %q", shared.ErrValidation, raw)
	}
}

// Permission represents an atomic capability on a resource. Action is empty
// when the permission applies to every action on the resource.
type Permission struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	DisplayName  string       `json:"displayName"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceKey  string       `json:"resourceKey"`
	Action       string       `json:"action,omitempty"`
	Enabled      bool         `json:"enabled"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// RoleGrant ties a permission to a role a user holds.
type RoleGrant struct {
	RoleID       int64
	PermissionID int64
}

// OverrideKind is the direction of a per-user override.
type OverrideKind string

const (
	OverrideGrant OverrideKind = "grant"
	OverrideDeny  OverrideKind = "deny"
)

// ParseOverrideKind validates an override kind.
func ParseOverrideKind(raw string) (OverrideKind, error) {
	switch k := OverrideKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case OverrideGrant, OverrideDeny:
		return k, nil
	default:
		return "", fmt.Errorf("%w: override kind must be grant or deny", shared.ErrValidation)
	}
}

// UserOverride grants or denies a single permission to one user, regardless
// of the roles they hold.
type UserOverride struct {
	UserID       int64
	PermissionID int64
	Kind         OverrideKind
}

// NewPermission is the input for creating a permission.
type NewPermission struct {
	Name         string       `json:"name" validate:"required,max=128"`
	DisplayName  string       `json:"displayName" validate:"max=256"`
	ResourceType ResourceType `json:"resourceType" validate:"required,max=16"`
	ResourceKey  string       `json:"resourceKey" validate:"required,max=512"`
	Action       string       `json:"action" validate:"max=64"`
}
