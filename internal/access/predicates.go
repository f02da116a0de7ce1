package access

// Allows applies the rule every guarded action shares: owners and admins are
// always allowed, editors and viewers only when they hold the bound
// permission, and anything else is denied.
func Allows(role Role, perms Permissions, required Permission) bool {
	switch role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleEditor, RoleViewer:
		return perms.Has(required)
	default:
		return false
	}
}

func CanCreateFunnel(role Role, perms Permissions) bool {
	return Allows(role, perms, PermCreateFunnels)
}

func CanDeleteFunnel(role Role, perms Permissions) bool {
	return Allows(role, perms, PermDeleteFunnels)
}

func CanEditFunnel(role Role, perms Permissions) bool {
	return Allows(role, perms, PermEditFunnels)
}

func CanViewFunnel(role Role, perms Permissions) bool {
	return Allows(role, perms, PermViewFunnels)
}

func CanCreateDomain(role Role, perms Permissions) bool {
	return Allows(role, perms, PermCreateDomains)
}

func CanConnectDomain(role Role, perms Permissions) bool {
	return Allows(role, perms, PermConnectDomains)
}

func CanManageDomain(role Role, perms Permissions) bool {
	return Allows(role, perms, PermManageDomains)
}

func CanDeleteDomain(role Role, perms Permissions) bool {
	return Allows(role, perms, PermDeleteDomains)
}

// CanInviteMembers and CanManageMembers bind the same permission; invitations
// and role changes are one capability.
func CanInviteMembers(role Role, perms Permissions) bool {
	return Allows(role, perms, PermManageMembers)
}

func CanManageMembers(role Role, perms Permissions) bool {
	return Allows(role, perms, PermManageMembers)
}

func CanEditSettings(role Role, perms Permissions) bool {
	return Allows(role, perms, PermEditSettings)
}

func CanManageImages(role Role, perms Permissions) bool {
	return Allows(role, perms, PermManageImages)
}

func CanManageIntegrations(role Role, perms Permissions) bool {
	return Allows(role, perms, PermManageIntegrations)
}
