package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/pkg/util"
)

// EntitlementSource supplies the add-ons a workspace has paid for.
// *billing.Service implements it.
type EntitlementSource interface {
	Entitlements(ctx context.Context, workspaceID int64) (*billing.Entitlements, error)
	Invalidate(ctx context.Context, workspaceID int64) error
}

// InvitationNotifier is told about every new invitation so the invitee can
// be emailed out of band.
type InvitationNotifier interface {
	NotifyInvitation(ctx context.Context, invitationID int64) error
}

type Service struct {
	db           *gorm.DB
	resolver     *access.Resolver
	entitlements EntitlementSource
	notifier     InvitationNotifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Options struct {
	Notifier InvitationNotifier
	Metrics  *metrics.Metrics
}

func NewService(db *gorm.DB, resolver *access.Resolver, entitlements EntitlementSource, logger *slog.Logger, opts Options) *Service {
	return &Service{
		db:           db,
		resolver:     resolver,
		entitlements: entitlements,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		logger:       logger,
	}
}

// Summary is a workspace as seen by one user.
type Summary struct {
	models.Workspace
	Role        access.Role        `json:"role"`
	Permissions access.Permissions `json:"permissions"`
}

// Create adds a FREE workspace owned by userID. The number of workspaces a
// user may own is set by the highest tier among the workspaces they already
// own; the owner row is locked so concurrent creations cannot both pass.
func (s *Service) Create(ctx context.Context, userID int64, name string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	var ws models.Workspace

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := database.LockUser(tx, userID); err != nil {
			if database.IsNotFound(err) {
				return ErrUserNotFound
			}
			return fmt.Errorf("locking user: %w", err)
		}

		var owned []models.Workspace
		if err := tx.Select("id", "plan").Where("owner_id = ?", userID).Find(&owned).Error; err != nil {
			return fmt.Errorf("counting owned workspaces: %w", err)
		}
		if err := s.enforce(allocation.ResourceWorkspaces, len(owned), highestTier(owned), nil); err != nil {
			return err
		}

		ws = models.Workspace{
			Name:    name,
			Slug:    util.UniqueSlug(name),
			OwnerID: userID,
			Plan:    allocation.PlanFree,
		}
		return tx.Create(&ws).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created workspace", "workspace_id", ws.ID, "owner_id", userID)
	return &ws, nil
}

// List returns every workspace the user owns or belongs to, oldest first.
func (s *Service) List(ctx context.Context, userID int64) ([]Summary, error) {
	db := s.db.WithContext(ctx)

	var owned []models.Workspace
	if err := db.Where("owner_id = ?", userID).Find(&owned).Error; err != nil {
		return nil, fmt.Errorf("listing owned workspaces: %w", err)
	}

	var memberships []models.WorkspaceMember
	if err := db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}

	out := make([]Summary, 0, len(owned)+len(memberships))
	for _, ws := range owned {
		out = append(out, Summary{Workspace: ws, Role: access.RoleOwner, Permissions: access.Permissions{}})
	}

	if len(memberships) > 0 {
		ids := make([]int64, len(memberships))
		byWorkspace := make(map[int64]models.WorkspaceMember, len(memberships))
		for i, m := range memberships {
			ids[i] = m.WorkspaceID
			byWorkspace[m.WorkspaceID] = m
		}

		var joined []models.Workspace
		if err := db.Where("id IN ?", ids).Find(&joined).Error; err != nil {
			return nil, fmt.Errorf("listing member workspaces: %w", err)
		}
		for _, ws := range joined {
			m := byWorkspace[ws.ID]
			if ws.OwnerID == userID || !m.Role.IsAssignable() {
				continue
			}
			out = append(out, Summary{Workspace: ws, Role: m.Role, Permissions: m.Permissions})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the workspace if the user can see it at all.
func (s *Service) Get(ctx context.Context, userID, workspaceID int64) (*Summary, error) {
	res, err := s.resolver.Resolve(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}

	var ws models.Workspace
	if err := s.db.WithContext(ctx).First(&ws, workspaceID).Error; err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	return &Summary{Workspace: ws, Role: res.UserRole(), Permissions: res.UserPermissions()}, nil
}

// Update renames the workspace. The slug is kept so published URLs survive.
func (s *Service) Update(ctx context.Context, userID, workspaceID int64, name string) (*models.Workspace, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermEditSettings); err != nil {
		return nil, err
	}

	var ws models.Workspace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Workspace{}).
			Where("id = ?", workspaceID).
			Update("name", strings.TrimSpace(name)).Error; err != nil {
			return err
		}
		return tx.First(&ws, workspaceID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("updating workspace: %w", err)
	}
	return &ws, nil
}

// Delete removes an empty workspace and everything stored under it. Only
// the owner may delete; domains and images must be removed first because
// they hold resources outside the database.
func (s *Service) Delete(ctx context.Context, userID, workspaceID int64) error {
	res, err := s.resolver.Resolve(ctx, userID, workspaceID)
	if err != nil {
		return err
	}
	if err := res.RequireOwner(); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := database.LockWorkspace(tx, workspaceID); err != nil {
			return err
		}

		for _, m := range []any{&models.Domain{}, &models.Image{}} {
			var n int64
			if err := tx.Model(m).Where("workspace_id = ?", workspaceID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrNotEmpty
			}
		}

		funnelIDs := tx.Model(&models.Funnel{}).Select("id").Where("workspace_id = ?", workspaceID)
		if err := tx.Where("funnel_id IN (?)", funnelIDs).Delete(&models.Page{}).Error; err != nil {
			return err
		}
		for _, m := range []any{
			&models.Funnel{},
			&models.WorkspaceMember{},
			&models.Invitation{},
			&models.AddOn{},
			&models.Integration{},
			&models.Registration{},
		} {
			if err := tx.Where("workspace_id = ?", workspaceID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Workspace{}, workspaceID).Error
	})
	if errors.Is(err, ErrNotEmpty) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting workspace: %w", err)
	}

	if err := s.entitlements.Invalidate(ctx, workspaceID); err != nil {
		s.logger.Warn("failed to invalidate entitlements", "workspace_id", workspaceID, "error", err)
	}
	s.logger.Info("deleted workspace", "workspace_id", workspaceID, "owner_id", userID)
	return nil
}

// Usage is the allocation overview shown on the workspace settings page.
type Usage struct {
	Plan       allocation.PlanTier `json:"plan"`
	Funnels    allocation.Summary  `json:"funnels"`
	Admins     allocation.Summary  `json:"admins"`
	Workspaces allocation.Summary  `json:"workspaces"`
	Members    int64               `json:"members"`
}

// Usage loads the counts concurrently and summarises each allocation. The
// workspaces figure is for the caller, not the workspace owner.
func (s *Service) Usage(ctx context.Context, userID, workspaceID int64) (*Usage, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID); err != nil {
		return nil, err
	}

	ent, err := s.entitlements.Entitlements(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var (
		funnels, admins, members int64
		owned                    []models.Workspace
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Funnel{}).
			Where("workspace_id = ?", workspaceID).Count(&funnels).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.WorkspaceMember{}).
			Where("workspace_id = ? AND role = ?", workspaceID, access.RoleAdmin).Count(&admins).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.WorkspaceMember{}).
			Where("workspace_id = ?", workspaceID).Count(&members).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Select("id", "plan").
			Where("owner_id = ?", userID).Find(&owned).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading usage: %w", err)
	}

	return &Usage{
		Plan:       ent.Plan,
		Funnels:    allocation.Summarize(allocation.ResourceFunnels, int(funnels), ent.Plan, ent.AddOns),
		Admins:     allocation.Summarize(allocation.ResourceAdmins, int(admins), ent.Plan, ent.AddOns),
		Workspaces: allocation.Summarize(allocation.ResourceWorkspaces, len(owned), highestTier(owned), nil),
		Members:    members + 1,
	}, nil
}

func (s *Service) enforce(kind allocation.ResourceKind, count int, tier allocation.PlanTier, addOns []allocation.AddOn) error {
	if err := allocation.Enforce(kind, count, tier, addOns); err != nil {
		s.metrics.RecordLimitReached(kind)
		return err
	}
	return nil
}

// highestTier returns FREE for an empty list.
func highestTier(owned []models.Workspace) allocation.PlanTier {
	best := allocation.PlanFree
	for _, ws := range owned {
		if ws.Plan.IsValid() && ws.Plan.Rank() > best.Rank() {
			best = ws.Plan
		}
	}
	return best
}
