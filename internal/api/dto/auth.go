package dto

import (
	"strings"

	"github.com/hugh/funnel-builder/internal/api/validation"
	"github.com/hugh/funnel-builder/internal/database/models"
)

type RegisterRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	WorkspaceName string `json:"workspace_name,omitempty"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Email is invalid"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if msg := validation.ValidateName("Name", r.Name); msg != "" {
		errors["name"] = msg
	}
	if r.WorkspaceName != "" {
		if msg := validation.ValidateName("Workspace name", r.WorkspaceName); msg != "" {
			errors["workspace_name"] = msg
		}
	}

	return errors
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type AuthResponse struct {
	Token     string            `json:"token"`
	User      UserDTO           `json:"user"`
	Workspace *models.Workspace `json:"workspace,omitempty"`
}

type UserDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email, Name: u.Name}
}
