package access

import "slices"

// Permission is a fine-grained capability. It only matters for EDITOR and
// VIEWER members; owners and admins hold all of them implicitly.
type Permission string

const (
	PermCreateFunnels      Permission = "CREATE_FUNNELS"
	PermDeleteFunnels      Permission = "DELETE_FUNNELS"
	PermEditFunnels        Permission = "EDIT_FUNNELS"
	PermViewFunnels        Permission = "VIEW_FUNNELS"
	PermCreateDomains      Permission = "CREATE_DOMAINS"
	PermConnectDomains     Permission = "CONNECT_DOMAINS"
	PermManageDomains      Permission = "MANAGE_DOMAINS"
	PermDeleteDomains      Permission = "DELETE_DOMAINS"
	PermManageMembers      Permission = "MANAGE_MEMBERS"
	PermEditSettings       Permission = "EDIT_SETTINGS"
	PermManageImages       Permission = "MANAGE_IMAGES"
	PermManageIntegrations Permission = "MANAGE_INTEGRATIONS"
)

var allPermissions = []Permission{
	PermCreateFunnels,
	PermDeleteFunnels,
	PermEditFunnels,
	PermViewFunnels,
	PermCreateDomains,
	PermConnectDomains,
	PermManageDomains,
	PermDeleteDomains,
	PermManageMembers,
	PermEditSettings,
	PermManageImages,
	PermManageIntegrations,
}

// AllPermissions returns every known permission in declaration order.
func AllPermissions() []Permission {
	return slices.Clone(allPermissions)
}

// IsValid reports whether p is a known permission.
func (p Permission) IsValid() bool {
	return slices.Contains(allPermissions, p)
}

func (p Permission) String() string {
	return string(p)
}

// Permissions is the permission set stored on a membership.
type Permissions []Permission

// Has reports whether p is in the set.
func (ps Permissions) Has(p Permission) bool {
	return slices.Contains(ps, p)
}

// Normalize drops unknown and duplicate entries and sorts the rest in
// declaration order, so stored sets compare equal regardless of input order.
func (ps Permissions) Normalize() Permissions {
	out := make(Permissions, 0, len(ps))
	for _, p := range allPermissions {
		if ps.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Invalid returns the entries that are not known permissions.
func (ps Permissions) Invalid() []Permission {
	var bad []Permission
	for _, p := range ps {
		if !p.IsValid() {
			bad = append(bad, p)
		}
	}
	return bad
}
