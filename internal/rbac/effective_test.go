package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePermissionIDs(t *testing.T) {
	tests := []struct {
		name      string
		grants    []RoleGrant
		overrides []UserOverride
		want      []int64
	}{
		{
			name:   "role grants are unioned",
			grants: []RoleGrant{{RoleID: 1, PermissionID: 3}, {RoleID: 2, PermissionID: 1}, {RoleID: 2, PermissionID: 3}},
			want:   []int64{1, 3},
		},
		{
			name:      "user grant adds",
			grants:    []RoleGrant{{RoleID: 1, PermissionID: 1}},
			overrides: []UserOverride{{PermissionID: 2, Kind: OverrideGrant}},
			want:      []int64{1, 2},
		},
		{
			name:      "deny beats role grant",
			grants:    []RoleGrant{{RoleID: 1, PermissionID: 1}, {RoleID: 1, PermissionID: 2}},
			overrides: []UserOverride{{PermissionID: 2, Kind: OverrideDeny}},
			want:      []int64{1},
		},
		{
			name: "deny beats user grant regardless of order",
			overrides: []UserOverride{
				{PermissionID: 5, Kind: OverrideDeny},
				{PermissionID: 5, Kind: OverrideGrant},
			},
			want: []int64{},
		},
		{
			name:      "deny on unheld permission is harmless",
			grants:    []RoleGrant{{RoleID: 1, PermissionID: 1}},
			overrides: []UserOverride{{PermissionID: 9, Kind: OverrideDeny}},
			want:      []int64{1},
		},
		{
			name: "nothing held",
			want: []int64{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EffectivePermissionIDs(tc.grants, tc.overrides)
			assert.Equal(t, tc.want, got.IDs())
		})
	}
}

func TestEffectivePermissionIDsIsDeterministic(t *testing.T) {
	grants := []RoleGrant{{RoleID: 1, PermissionID: 4}, {RoleID: 1, PermissionID: 2}, {RoleID: 3, PermissionID: 8}}
	overrides := []UserOverride{{PermissionID: 8, Kind: OverrideDeny}, {PermissionID: 6, Kind: OverrideGrant}}
	first := EffectivePermissionIDs(grants, overrides).IDs()
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, EffectivePermissionIDs(grants, overrides).IDs())
	}
	assert.Equal(t, []int64{2, 4, 6}, first)
}

func TestParseResourceType(t *testing.T) {
	rt, err := ParseResourceType(" Menu ")
	assert.NoError(t, err)
	assert.Equal(t, ResourceMenu, rt)

	_, err = ParseResourceType("page")
	assert.Error(t, err)
}
