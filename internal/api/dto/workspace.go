package dto

import (
	"strings"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/api/validation"
)

type WorkspaceRequest struct {
	Name string `json:"name"`
}

func (r WorkspaceRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if msg := validation.ValidateName("Name", r.Name); msg != "" {
		errors["name"] = msg
	}
	return errors
}

type InviteRequest struct {
	Email       string              `json:"email"`
	Role        access.Role         `json:"role"`
	Permissions []access.Permission `json:"permissions"`
}

func (r InviteRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Email is invalid"
	}
	validateGrant(errors, r.Role, r.Permissions)

	return errors
}

type UpdateMemberRequest struct {
	Role        access.Role         `json:"role"`
	Permissions []access.Permission `json:"permissions"`
}

func (r UpdateMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	validateGrant(errors, r.Role, r.Permissions)
	return errors
}

func validateGrant(errors map[string]string, role access.Role, perms []access.Permission) {
	switch {
	case role == "":
		errors["role"] = "Role is required"
	case !role.IsAssignable():
		errors["role"] = "Role must be ADMIN, EDITOR or VIEWER"
	}
	if bad := access.Permissions(perms).Invalid(); len(bad) > 0 {
		names := make([]string, len(bad))
		for i, p := range bad {
			names[i] = string(p)
		}
		errors["permissions"] = "Unknown permissions: " + strings.Join(names, ", ")
	}
}
