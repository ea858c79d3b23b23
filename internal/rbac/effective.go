package rbac

import "slices"

// PermissionSet is a user's effective permission ids.
type PermissionSet map[int64]struct{}

// EffectivePermissionIDs merges role grants with user overrides. Grants from
// roles and user-level grants are unioned, then every user-level deny is
// removed. A deny always wins.
func EffectivePermissionIDs(grants []RoleGrant, overrides []UserOverride) PermissionSet {
	set := make(PermissionSet, len(grants)+len(overrides))
	for _, g := range grants {
		set[g.PermissionID] = struct{}{}
	}
	for _, o := range overrides {
		if o.Kind == OverrideGrant {
			set[o.PermissionID] = struct{}{}
		}
	}
	for _, o := range overrides {
		if o.Kind == OverrideDeny {
			delete(set, o.PermissionID)
		}
	}
	return set
}

func permissionSetOf(ids []int64) PermissionSet {
	set := make(PermissionSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (s PermissionSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in ascending order.
func (s PermissionSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
