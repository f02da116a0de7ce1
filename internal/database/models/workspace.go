package models

import (
	"time"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
)

type Workspace struct {
	Base
	Name    string              `gorm:"not null" json:"name"`
	Slug    string              `gorm:"uniqueIndex;not null" json:"slug"`
	OwnerID int64               `gorm:"index;not null" json:"owner_id"`
	Plan    allocation.PlanTier `gorm:"size:16;not null;default:'FREE'" json:"plan"`

	Owner *User `gorm:"foreignKey:OwnerID" json:"-"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// Ref is the projection the access resolver works with.
func (w *Workspace) Ref() *access.WorkspaceRef {
	return &access.WorkspaceRef{ID: w.ID, Name: w.Name, OwnerID: w.OwnerID}
}

// WorkspaceMember holds ADMIN, EDITOR and VIEWER rows. Ownership lives on
// Workspace.OwnerID and is never stored here.
type WorkspaceMember struct {
	Base
	WorkspaceID int64              `gorm:"uniqueIndex:idx_member_user_workspace;not null" json:"workspace_id"`
	UserID      int64              `gorm:"uniqueIndex:idx_member_user_workspace;index;not null" json:"user_id"`
	Role        access.Role        `gorm:"size:16;not null" json:"role"`
	Permissions access.Permissions `gorm:"serializer:json" json:"permissions"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

func (m *WorkspaceMember) Membership() *access.Membership {
	return &access.Membership{Role: m.Role, Permissions: m.Permissions}
}

type Invitation struct {
	Base
	WorkspaceID int64              `gorm:"index;not null" json:"workspace_id"`
	Email       string             `gorm:"index;not null" json:"email"`
	Role        access.Role        `gorm:"size:16;not null" json:"role"`
	Permissions access.Permissions `gorm:"serializer:json" json:"permissions"`
	Token       string             `gorm:"uniqueIndex;not null" json:"-"`
	InvitedBy   int64              `gorm:"not null" json:"invited_by"`
	ExpiresAt   time.Time          `json:"expires_at"`
	AcceptedAt  *time.Time         `json:"accepted_at,omitempty"`

	Workspace *Workspace `gorm:"foreignKey:WorkspaceID" json:"-"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) IsPending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}
