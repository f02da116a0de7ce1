package funnels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/pkg/util"
)

var (
	ErrFunnelNotFound = errors.New("funnel not found")
	ErrPageNotFound   = errors.New("page not found")
	ErrSlugTaken      = errors.New("a funnel with this slug already exists in the workspace")
	ErrInvalidSlug    = errors.New("slug must contain letters or digits")
	ErrInvalidOrder   = errors.New("page order must list every page of the funnel exactly once")
)

// EntitlementSource supplies the add-ons a workspace has paid for.
type EntitlementSource interface {
	Entitlements(ctx context.Context, workspaceID int64) (*billing.Entitlements, error)
}

type Service struct {
	db           *gorm.DB
	resolver     *access.Resolver
	entitlements EntitlementSource
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewService(db *gorm.DB, resolver *access.Resolver, entitlements EntitlementSource, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		db:           db,
		resolver:     resolver,
		entitlements: entitlements,
		metrics:      m,
		logger:       logger,
	}
}

type CreateFunnelInput struct {
	Name string
	Slug string // derived from Name when empty
}

type UpdateFunnelInput struct {
	Name      *string
	Slug      *string
	Published *bool
}

// Detail is a funnel with its pages and the page allocation left on it.
type Detail struct {
	models.Funnel
	PageUsage allocation.Summary `json:"page_usage"`
}

// CreateFunnel enforces the per-workspace funnel ceiling with the workspace
// row locked, so two concurrent creates cannot both take the last slot.
func (s *Service) CreateFunnel(ctx context.Context, userID, workspaceID int64, in CreateFunnelInput) (*models.Funnel, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermCreateFunnels); err != nil {
		return nil, err
	}

	slug, err := funnelSlug(in.Slug, in.Name)
	if err != nil {
		return nil, err
	}

	funnel := models.Funnel{
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(in.Name),
		Slug:        slug,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := database.LockWorkspace(tx, workspaceID)
		if err != nil {
			return err
		}

		addOns, err := billing.LoadAddOns(tx, workspaceID)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Funnel{}).Where("workspace_id = ?", workspaceID).Count(&count).Error; err != nil {
			return fmt.Errorf("counting funnels: %w", err)
		}
		if err := s.enforce(allocation.ResourceFunnels, int(count), ws.Plan, addOns); err != nil {
			return err
		}

		return tx.Create(&funnel).Error
	})
	if database.IsDuplicate(err) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("created funnel", "workspace_id", workspaceID, "funnel_id", funnel.ID)
	return &funnel, nil
}

func (s *Service) ListFunnels(ctx context.Context, userID, workspaceID int64) ([]models.Funnel, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermViewFunnels); err != nil {
		return nil, err
	}

	var funnels []models.Funnel
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("id").
		Find(&funnels).Error; err != nil {
		return nil, fmt.Errorf("listing funnels: %w", err)
	}
	return funnels, nil
}

func (s *Service) GetFunnel(ctx context.Context, userID, workspaceID, funnelID int64) (*Detail, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermViewFunnels); err != nil {
		return nil, err
	}

	ent, err := s.entitlements.Entitlements(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var funnel models.Funnel
	if err := s.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Where("id = ? AND workspace_id = ?", funnelID, workspaceID).
		First(&funnel).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("loading funnel: %w", err)
	}

	return &Detail{
		Funnel:    funnel,
		PageUsage: allocation.Summarize(allocation.ResourcePagesPerFunnel, len(funnel.Pages), ent.Plan, ent.AddOns),
	}, nil
}

// UpdateFunnel applies the non-nil fields, including publishing.
func (s *Service) UpdateFunnel(ctx context.Context, userID, workspaceID, funnelID int64, in UpdateFunnelInput) (*models.Funnel, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermEditFunnels); err != nil {
		return nil, err
	}

	funnel, err := s.loadFunnel(s.db.WithContext(ctx), workspaceID, funnelID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		slug, err := funnelSlug(*in.Slug, "")
		if err != nil {
			return nil, err
		}
		updates["slug"] = slug
	}
	if in.Published != nil {
		updates["published"] = *in.Published
	}
	if len(updates) == 0 {
		return funnel, nil
	}

	if err := s.db.WithContext(ctx).Model(funnel).Updates(updates).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("updating funnel: %w", err)
	}
	return s.loadFunnel(s.db.WithContext(ctx), workspaceID, funnelID)
}

// Publish is UpdateFunnel for the published flag alone.
func (s *Service) Publish(ctx context.Context, userID, workspaceID, funnelID int64, published bool) (*models.Funnel, error) {
	return s.UpdateFunnel(ctx, userID, workspaceID, funnelID, UpdateFunnelInput{Published: &published})
}

// DeleteFunnel removes the funnel and its pages. Domains pointing at it are
// detached, not deleted.
func (s *Service) DeleteFunnel(ctx context.Context, userID, workspaceID, funnelID int64) error {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermDeleteFunnels); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		funnel, err := s.loadFunnel(tx, workspaceID, funnelID)
		if err != nil {
			return err
		}
		if err := tx.Where("funnel_id = ?", funnel.ID).Delete(&models.Page{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Domain{}).
			Where("funnel_id = ?", funnel.ID).
			Update("funnel_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(funnel).Error
	})
	if errors.Is(err, ErrFunnelNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting funnel: %w", err)
	}

	s.logger.Info("deleted funnel", "workspace_id", workspaceID, "funnel_id", funnelID)
	return nil
}

func (s *Service) loadFunnel(db *gorm.DB, workspaceID, funnelID int64) (*models.Funnel, error) {
	var funnel models.Funnel
	if err := db.Where("id = ? AND workspace_id = ?", funnelID, workspaceID).First(&funnel).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("loading funnel: %w", err)
	}
	return &funnel, nil
}

func (s *Service) enforce(kind allocation.ResourceKind, count int, tier allocation.PlanTier, addOns []allocation.AddOn) error {
	if err := allocation.Enforce(kind, count, tier, addOns); err != nil {
		s.metrics.RecordLimitReached(kind)
		return err
	}
	return nil
}

func funnelSlug(slug, name string) (string, error) {
	if strings.TrimSpace(slug) == "" {
		slug = name
	}
	out := util.Slugify(slug)
	if out == "" {
		return "", ErrInvalidSlug
	}
	return out, nil
}
