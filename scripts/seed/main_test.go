package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

func TestPermissionCatalogNamesAreUnique(t *testing.T) {
	perms := permissionCatalog()
	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		require.False(t, seen[p.name], "duplicate permission %s", p.name)
		seen[p.name] = true
		if p.resourceType == rbac.ResourceAPI {
			assert.NotEmpty(t, p.action, p.name)
		}
	}
}

func TestAPIPermissionName(t *testing.T) {
	assert.Equal(t, "api.get.users.userID", apiPermissionName("/api/users/{userID}", http.MethodGet))
	assert.Equal(t, "api.delete.roles.roleID.permissions.permissionID",
		apiPermissionName("/api/roles/{roleID}/permissions/{permissionID}", http.MethodDelete))
}

func TestRoleCatalog(t *testing.T) {
	perms := permissionCatalog()
	roles := roleCatalog(perms)
	require.Len(t, roles, 3)

	admin := roles[0]
	assert.True(t, admin.system)
	assert.Len(t, admin.permissions, len(perms))

	editor := roles[1]
	assert.Contains(t, editor.permissions, "api.get.permissions")
	assert.NotContains(t, editor.permissions, "api.post.permissions")
}
