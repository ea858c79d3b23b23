package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type recordingRechecker struct {
	mu    sync.Mutex
	users []int64
	roles []int64
	err   error
}

func (r *recordingRechecker) RecheckUsers(ctx context.Context, userIDs ...int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userIDs...)
	return r.err
}

func (r *recordingRechecker) RecheckRole(ctx context.Context, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, roleID)
	return r.err
}

func TestGrantRolePermissionInvalidatesMembers(t *testing.T) {
	ctx := context.Background()
	resolver, store, mr := newTestResolver(t)
	recheck := &recordingRechecker{}
	svc := NewService(store, resolver, recheck, nil)
	require.NoError(t, store.AssignUserRole(ctx, userAlice, roleEditor))

	granted, err := resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	require.False(t, granted)
	require.True(t, mr.Exists("user_permissions:1"))

	require.NoError(t, svc.GrantRolePermission(ctx, roleEditor, permReports))
	assert.False(t, mr.Exists("user_permissions:1"))
	assert.Equal(t, []int64{roleEditor}, recheck.roles)

	granted, err = resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestUserOverrideLastWriteWins(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t)
	recheck := &recordingRechecker{}
	svc := NewService(store, resolver, recheck, nil)

	require.NoError(t, svc.SetUserOverride(ctx, UserOverride{UserID: userAlice, PermissionID: permReports, Kind: OverrideGrant}))
	granted, err := resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, svc.SetUserOverride(ctx, UserOverride{UserID: userAlice, PermissionID: permReports, Kind: OverrideDeny}))
	granted, err = resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, svc.RemoveUserOverride(ctx, UserOverride{UserID: userAlice, PermissionID: permReports, Kind: OverrideDeny}))
	granted, err = resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	assert.False(t, granted)

	assert.Equal(t, []int64{userAlice, userAlice, userAlice}, recheck.users)
}

func TestUserRoleMembershipChanges(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t)
	svc := NewService(store, resolver, nil, nil)
	require.NoError(t, store.GrantRolePermission(ctx, roleEditor, permReports))

	require.NoError(t, svc.AssignUserRole(ctx, userAlice, roleEditor))
	granted, err := resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, svc.RemoveUserRole(ctx, userAlice, roleEditor))
	granted, err = resolver.IsGranted(ctx, userAlice, ResourceMenu, "/reports", "")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestRecheckFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t)
	svc := NewService(store, resolver, &recordingRechecker{err: errors.New("queue down")}, nil)

	assert.NoError(t, svc.AssignUserRole(ctx, userAlice, roleEditor))
}

func TestInvalidOverrideKindRejected(t *testing.T) {
	resolver, store, _ := newTestResolver(t)
	svc := NewService(store, resolver, nil, nil)

	err := svc.SetUserOverride(context.Background(), UserOverride{UserID: userAlice, PermissionID: permReports, Kind: "allow"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceStoreErrors(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t)
	svc := NewService(store, resolver, nil, nil)

	_, err := svc.CreatePermission(ctx, NewPermission{Name: "menu.reports", ResourceType: ResourceMenu, ResourceKey: "/reports"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreatePermission(ctx, NewPermission{Name: "x", ResourceType: "page", ResourceKey: "/x"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	store.setErr(errors.New("broken pipe"))
	err = svc.GrantRolePermission(ctx, roleEditor, permReports)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestCreatePermissionNormalizesTypeAndMethod(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t)
	svc := NewService(store, resolver, nil, nil)

	menu, err := svc.CreatePermission(ctx, NewPermission{Name: "menu.audit", ResourceType: "Menu", ResourceKey: "/audit"})
	require.NoError(t, err)
	assert.Equal(t, ResourceMenu, menu.ResourceType)

	api, err := svc.CreatePermission(ctx, NewPermission{Name: "api.invoices.get", ResourceType: " API ", ResourceKey: "/api/invoices", Action: "get"})
	require.NoError(t, err)
	assert.Equal(t, ResourceAPI, api.ResourceType)
	assert.Equal(t, "GET", api.Action)

	button, err := svc.CreatePermission(ctx, NewPermission{Name: "button.export", ResourceType: ResourceButton, ResourceKey: "export", Action: "click"})
	require.NoError(t, err)
	assert.Equal(t, "click", button.Action)

	require.NoError(t, svc.SetUserOverride(ctx, UserOverride{UserID: userAlice, PermissionID: api.ID, Kind: OverrideGrant}))
	require.NoError(t, svc.SetUserOverride(ctx, UserOverride{UserID: userAlice, PermissionID: menu.ID, Kind: OverrideGrant}))

	granted, err := resolver.IsGranted(ctx, userAlice, ResourceAPI, "/api/invoices", "GET")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = resolver.IsGranted(ctx, userAlice, ResourceMenu, "/audit", "")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestGrantUnknownPermissionIsNotFound(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t)
	recheck := &recordingRechecker{}
	svc := NewService(store, resolver, recheck, nil)

	assert.ErrorIs(t, svc.GrantRolePermission(ctx, roleEditor, 999), shared.ErrNotFound)
	assert.ErrorIs(t, svc.AssignUserRole(ctx, userAlice, 77), shared.ErrNotFound)
	assert.Empty(t, recheck.roles)
	assert.Empty(t, recheck.users)
}
