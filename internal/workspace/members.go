package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/pkg/crypto"
)

// InvitationTTL is how long an invitation link stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// Member is one row of the member list. The owner appears first with role
// OWNER even though it has no membership row.
type Member struct {
	UserID      int64              `json:"user_id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        access.Role        `json:"role"`
	Permissions access.Permissions `json:"permissions"`
	JoinedAt    time.Time          `json:"joined_at"`
}

type InviteInput struct {
	Email       string
	Role        access.Role
	Permissions []access.Permission
}

type UpdateMemberInput struct {
	Role        access.Role
	Permissions []access.Permission
}

func (s *Service) ListMembers(ctx context.Context, userID, workspaceID int64) ([]Member, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID); err != nil {
		return nil, err
	}

	var ws models.Workspace
	if err := s.db.WithContext(ctx).Preload("Owner").First(&ws, workspaceID).Error; err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}

	var rows []models.WorkspaceMember
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("workspace_id = ?", workspaceID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	out := make([]Member, 0, len(rows)+1)
	owner := Member{UserID: ws.OwnerID, Role: access.RoleOwner, Permissions: access.Permissions{}, JoinedAt: ws.CreatedAt}
	if ws.Owner != nil {
		owner.Email, owner.Name = ws.Owner.Email, ws.Owner.Name
	}
	out = append(out, owner)

	for _, m := range rows {
		member := Member{UserID: m.UserID, Role: m.Role, Permissions: m.Permissions, JoinedAt: m.CreatedAt}
		if m.User != nil {
			member.Email, member.Name = m.User.Email, m.User.Name
		}
		out = append(out, member)
	}
	return out, nil
}

// Invite creates a pending invitation and hands it to the notifier. ADMIN
// invitations need a free admin slot now and again when accepted.
func (s *Service) Invite(ctx context.Context, userID, workspaceID int64, in InviteInput) (*models.Invitation, error) {
	perms, err := checkRoleAndPermissions(in.Role, in.Permissions)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageMembers)
	if err != nil {
		return nil, err
	}
	if err := checkGrantable(res, in.Role, perms); err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(32)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	inv := models.Invitation{
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        in.Role,
		Permissions: perms,
		Token:       token,
		InvitedBy:   userID,
		ExpiresAt:   time.Now().Add(InvitationTTL),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := database.LockWorkspace(tx, workspaceID)
		if err != nil {
			return err
		}

		member, err := s.isMemberEmail(tx, ws, email)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}

		if in.Role == access.RoleAdmin {
			if err := s.enforceAdminSlot(tx, ws); err != nil {
				return err
			}
		}

		// A fresh invitation supersedes any earlier pending one.
		if err := tx.Where("workspace_id = ? AND email = ? AND accepted_at IS NULL", workspaceID, email).
			Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		return tx.Create(&inv).Error
	})
	if err != nil {
		return nil, wrapUnlessKnown(err, "creating invitation")
	}

	s.logger.Info("invited member",
		"workspace_id", workspaceID,
		"invitation_id", inv.ID,
		"role", inv.Role,
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyInvitation(ctx, inv.ID); err != nil {
			s.logger.Error("failed to queue invitation email", "invitation_id", inv.ID, "error", err)
		}
	}
	return &inv, nil
}

// AcceptInvitation turns a pending invitation into a membership for userID.
// The user's email must match the address the invitation was sent to.
func (s *Service) AcceptInvitation(ctx context.Context, userID int64, token string) (*models.WorkspaceMember, error) {
	var inv models.Invitation
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("loading invitation: %w", err)
	}
	if inv.AcceptedAt != nil {
		return nil, ErrInvitationNotFound
	}
	if !inv.IsPending(time.Now()) {
		return nil, ErrInvitationExpired
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		return nil, ErrInvitationEmail
	}

	member := models.WorkspaceMember{
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		Role:        inv.Role,
		Permissions: inv.Permissions,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := database.LockWorkspace(tx, inv.WorkspaceID)
		if err != nil {
			if database.IsNotFound(err) {
				return ErrInvitationNotFound
			}
			return err
		}
		if ws.OwnerID == userID {
			return ErrAlreadyMember
		}

		if inv.Role == access.RoleAdmin {
			if err := s.enforceAdminSlot(tx, ws); err != nil {
				return err
			}
		}

		if err := tx.Create(&member).Error; err != nil {
			if database.IsDuplicate(err) {
				return ErrAlreadyMember
			}
			return err
		}

		// Guard against a concurrent accept of the same token.
		res := tx.Model(&models.Invitation{}).
			Where("id = ? AND accepted_at IS NULL", inv.ID).
			Update("accepted_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvitationNotFound
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnlessKnown(err, "accepting invitation")
	}

	s.logger.Info("accepted invitation", "workspace_id", inv.WorkspaceID, "user_id", userID, "role", inv.Role)
	return &member, nil
}

// UpdateMember changes a member's role and permissions. Promotion to ADMIN
// is checked against the admin allocation with the workspace row locked.
func (s *Service) UpdateMember(ctx context.Context, userID, workspaceID, memberUserID int64, in UpdateMemberInput) (*models.WorkspaceMember, error) {
	perms, err := checkRoleAndPermissions(in.Role, in.Permissions)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageMembers)
	if err != nil {
		return nil, err
	}
	if memberUserID == res.Workspace.OwnerID {
		return nil, ErrOwnerImmutable
	}
	if err := checkGrantable(res, in.Role, perms); err != nil {
		return nil, err
	}

	var member models.WorkspaceMember
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := database.LockWorkspace(tx, workspaceID)
		if err != nil {
			return err
		}

		if err := tx.Where("workspace_id = ? AND user_id = ?", workspaceID, memberUserID).
			First(&member).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrMemberNotFound
			}
			return err
		}
		if member.Role == access.RoleAdmin && !res.UserRole().HasAllPermissions() {
			return ErrEscalation
		}

		if in.Role == access.RoleAdmin && member.Role != access.RoleAdmin {
			if err := s.enforceAdminSlot(tx, ws); err != nil {
				return err
			}
		}

		member.Role = in.Role
		member.Permissions = perms
		return tx.Model(&member).Select("role", "permissions").Updates(&member).Error
	})
	if err != nil {
		return nil, wrapUnlessKnown(err, "updating member")
	}

	s.logger.Info("updated member",
		"workspace_id", workspaceID,
		"user_id", memberUserID,
		"role", member.Role,
		"by", userID,
	)
	return &member, nil
}

// RemoveMember deletes a membership. Only owners and admins can remove an
// admin.
func (s *Service) RemoveMember(ctx context.Context, userID, workspaceID, memberUserID int64) error {
	res, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageMembers)
	if err != nil {
		return err
	}
	if memberUserID == res.Workspace.OwnerID {
		return ErrOwnerImmutable
	}

	var member models.WorkspaceMember
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, memberUserID).
		First(&member).Error; err != nil {
		if database.IsNotFound(err) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("loading member: %w", err)
	}
	if member.Role == access.RoleAdmin && !res.UserRole().HasAllPermissions() {
		return ErrEscalation
	}

	if err := s.db.WithContext(ctx).Delete(&member).Error; err != nil {
		return fmt.Errorf("removing member: %w", err)
	}

	s.logger.Info("removed member", "workspace_id", workspaceID, "user_id", memberUserID, "by", userID)
	return nil
}

// Leave removes the caller's own membership.
func (s *Service) Leave(ctx context.Context, userID, workspaceID int64) error {
	res, err := s.resolver.Resolve(ctx, userID, workspaceID)
	if err != nil {
		return err
	}
	if res.IsOwner() {
		return ErrOwnerCannotLeave
	}

	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Delete(&models.WorkspaceMember{}).Error; err != nil {
		return fmt.Errorf("leaving workspace: %w", err)
	}
	return nil
}

// enforceAdminSlot counts ADMIN rows; the owner does not take an admin slot.
// The caller must already hold the workspace row lock. Add-ons are read on
// tx, never from the entitlements cache.
func (s *Service) enforceAdminSlot(tx *gorm.DB, ws *models.Workspace) error {
	addOns, err := billing.LoadAddOns(tx, ws.ID)
	if err != nil {
		return err
	}
	var admins int64
	if err := tx.Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND role = ?", ws.ID, access.RoleAdmin).
		Count(&admins).Error; err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	return s.enforce(allocation.ResourceAdmins, int(admins), ws.Plan, addOns)
}

func (s *Service) isMemberEmail(tx *gorm.DB, ws *models.Workspace, email string) (bool, error) {
	var n int64
	err := tx.Model(&models.User{}).
		Where("email = ?", email).
		Where("id = ? OR id IN (?)", ws.OwnerID,
			tx.Model(&models.WorkspaceMember{}).Select("user_id").Where("workspace_id = ?", ws.ID)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return n > 0, nil
}

// checkRoleAndPermissions validates the requested grant and returns the
// permission set to store. Admins hold everything, so nothing is stored for
// them.
func checkRoleAndPermissions(role access.Role, perms []access.Permission) (access.Permissions, error) {
	if !role.IsAssignable() {
		return nil, ErrInvalidRole
	}
	ps := access.Permissions(perms)
	if bad := ps.Invalid(); len(bad) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPermission, bad)
	}
	if role == access.RoleAdmin {
		return access.Permissions{}, nil
	}
	return ps.Normalize(), nil
}

// checkGrantable stops a member from handing out more than they hold: only
// owners and admins can grant ADMIN, and an editor with MANAGE_MEMBERS may
// only pass on permissions they have themselves.
func checkGrantable(res *access.Result, role access.Role, perms access.Permissions) error {
	if res.UserRole().HasAllPermissions() {
		return nil
	}
	if role == access.RoleAdmin {
		return ErrEscalation
	}
	held := res.UserPermissions()
	for _, p := range perms {
		if !held.Has(p) {
			return ErrEscalation
		}
	}
	return nil
}

var knownErrors = []error{
	ErrAlreadyMember,
	ErrMemberNotFound,
	ErrInvitationNotFound,
	ErrEscalation,
	allocation.ErrLimitReached,
}

func wrapUnlessKnown(err error, op string) error {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
