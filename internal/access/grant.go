package access

// Grant is how a user holds a workspace: either as its owner or through a
// membership row. The two are distinct types so callers can switch on them.
type Grant interface {
	Role() Role
	Permissions() Permissions
	isGrant()
}

// OwnerGrant is derived from workspace.OwnerID; it is never stored.
type OwnerGrant struct{}

func (OwnerGrant) Role() Role { return RoleOwner }

// Permissions is always empty: the owner bypasses every permission check.
func (OwnerGrant) Permissions() Permissions { return Permissions{} }

func (OwnerGrant) isGrant() {}

// MemberGrant comes from a WorkspaceMember row.
type MemberGrant struct {
	role  Role
	perms Permissions
}

// NewMemberGrant builds a grant for a stored membership.
func NewMemberGrant(role Role, perms Permissions) MemberGrant {
	if perms == nil {
		perms = Permissions{}
	}
	return MemberGrant{role: role, perms: perms}
}

func (g MemberGrant) Role() Role { return g.role }

func (g MemberGrant) Permissions() Permissions { return g.perms }

func (MemberGrant) isGrant() {}
