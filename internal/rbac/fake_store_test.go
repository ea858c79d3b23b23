package rbac

import (
	"context"
	"fmt"
	"sync"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type fakeStore struct {
	mu          sync.Mutex
	permissions []Permission
	roles       map[int64]struct{}
	rolePerms   map[int64]map[int64]struct{}
	userRoles   map[int64]map[int64]struct{}
	overrides   map[int64]map[int64]OverrideKind
	grantLoads  int
	err         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:     make(map[int64]struct{}),
		rolePerms: make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
		overrides: make(map[int64]map[int64]OverrideKind),
	}
}

func (f *fakeStore) addPermission(p Permission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions = append(f.permissions, p)
}

func (f *fakeStore) addRole(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[id] = struct{}{}
}

// edgeErr mirrors the repository's foreign key handling for inserts.
func (f *fakeStore) edgeErr(roleID, permissionID int64) error {
	if roleID != 0 {
		if _, ok := f.roles[roleID]; !ok {
			return fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
		}
	}
	if permissionID == 0 {
		return nil
	}
	for _, p := range f.permissions {
		if p.ID == permissionID {
			return nil
		}
	}
	return fmt.Errorf("permission %d: %w", permissionID, shared.ErrNotFound)
}

func (f *fakeStore) FindPermission(ctx context.Context, resourceType ResourceType, resourceKey, action string) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Permission{}, f.err
	}
	var fallback *Permission
	for i, p := range f.permissions {
		if p.ResourceType != resourceType || p.ResourceKey != resourceKey {
			continue
		}
		if action != "" && p.Action == action {
			return p, nil
		}
		if p.Action == "" {
			fallback = &f.permissions[i]
		}
	}
	if fallback == nil {
		return Permission{}, shared.ErrNotFound
	}
	return *fallback, nil
}

func (f *fakeStore) RoleGrantsForUser(ctx context.Context, userID int64) ([]RoleGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantLoads++
	if f.err != nil {
		return nil, f.err
	}
	var grants []RoleGrant
	for roleID := range f.userRoles[userID] {
		for permID := range f.rolePerms[roleID] {
			grants = append(grants, RoleGrant{RoleID: roleID, PermissionID: permID})
		}
	}
	return grants, nil
}

func (f *fakeStore) UserOverrides(ctx context.Context, userID int64) ([]UserOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []UserOverride
	for permID, kind := range f.overrides[userID] {
		out = append(out, UserOverride{UserID: userID, PermissionID: permID, Kind: kind})
	}
	return out, nil
}

func (f *fakeStore) UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ids []int64
	for userID, roles := range f.userRoles {
		if _, ok := roles[roleID]; ok {
			ids = append(ids, userID)
		}
	}
	return ids, nil
}

func (f *fakeStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Permission(nil), f.permissions...), nil
}

func (f *fakeStore) CreatePermission(ctx context.Context, in NewPermission) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Permission{}, f.err
	}
	for _, p := range f.permissions {
		if p.Name == in.Name {
			return Permission{}, shared.ErrConflict
		}
	}
	p := Permission{
		ID:           int64(len(f.permissions) + 100),
		Name:         in.Name,
		DisplayName:  in.DisplayName,
		ResourceType: in.ResourceType,
		ResourceKey:  in.ResourceKey,
		Action:       in.Action,
		Enabled:      true,
	}
	f.permissions = append(f.permissions, p)
	return p, nil
}

func (f *fakeStore) GrantRolePermission(ctx context.Context, roleID, permissionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := f.edgeErr(roleID, permissionID); err != nil {
		return err
	}
	if f.rolePerms[roleID] == nil {
		f.rolePerms[roleID] = make(map[int64]struct{})
	}
	f.rolePerms[roleID][permissionID] = struct{}{}
	return nil
}

func (f *fakeStore) RevokeRolePermission(ctx context.Context, roleID, permissionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.rolePerms[roleID], permissionID)
	return nil
}

func (f *fakeStore) AssignUserRole(ctx context.Context, userID, roleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := f.edgeErr(roleID, 0); err != nil {
		return err
	}
	if f.userRoles[userID] == nil {
		f.userRoles[userID] = make(map[int64]struct{})
	}
	f.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (f *fakeStore) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.userRoles[userID], roleID)
	return nil
}

func (f *fakeStore) SetUserOverride(ctx context.Context, o UserOverride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := f.edgeErr(0, o.PermissionID); err != nil {
		return err
	}
	if f.overrides[o.UserID] == nil {
		f.overrides[o.UserID] = make(map[int64]OverrideKind)
	}
	f.overrides[o.UserID][o.PermissionID] = o.Kind
	return nil
}

func (f *fakeStore) RemoveUserOverride(ctx context.Context, o UserOverride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.overrides[o.UserID][o.PermissionID] == o.Kind {
		delete(f.overrides[o.UserID], o.PermissionID)
	}
	return nil
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
