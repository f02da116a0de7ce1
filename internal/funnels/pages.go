package funnels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/pkg/util"
)

type CreatePageInput struct {
	Name    string
	Path    string // "/<slug of name>" when empty
	Content string
}

type UpdatePageInput struct {
	Name    *string
	Path    *string
	Content *string
}

// CreatePage appends a page to the funnel. The pages-per-funnel ceiling
// grows with active EXTRA_PAGE add-ons.
func (s *Service) CreatePage(ctx context.Context, userID, workspaceID, funnelID int64, in CreatePageInput) (*models.Page, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermEditFunnels); err != nil {
		return nil, err
	}

	page := models.Page{
		FunnelID:  funnelID,
		Name:      strings.TrimSpace(in.Name),
		Path:      pagePath(in.Path, in.Name),
		Content:   in.Content,
		LinkingID: uuid.NewString(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := database.LockWorkspace(tx, workspaceID)
		if err != nil {
			return err
		}
		if _, err := s.loadFunnel(tx, workspaceID, funnelID); err != nil {
			return err
		}
		addOns, err := billing.LoadAddOns(tx, workspaceID)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Page{}).Where("funnel_id = ?", funnelID).Count(&count).Error; err != nil {
			return fmt.Errorf("counting pages: %w", err)
		}
		if err := s.enforce(allocation.ResourcePagesPerFunnel, int(count), ws.Plan, addOns); err != nil {
			return err
		}

		page.Position = int(count)
		return tx.Create(&page).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created page", "funnel_id", funnelID, "page_id", page.ID, "position", page.Position)
	return &page, nil
}

func (s *Service) ListPages(ctx context.Context, userID, workspaceID, funnelID int64) ([]models.Page, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermViewFunnels); err != nil {
		return nil, err
	}
	if _, err := s.loadFunnel(s.db.WithContext(ctx), workspaceID, funnelID); err != nil {
		return nil, err
	}

	var pages []models.Page
	if err := s.db.WithContext(ctx).
		Where("funnel_id = ?", funnelID).
		Order("position, id").
		Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	return pages, nil
}

func (s *Service) UpdatePage(ctx context.Context, userID, workspaceID, funnelID, pageID int64, in UpdatePageInput) (*models.Page, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermEditFunnels); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	page, err := s.loadPage(db, workspaceID, funnelID, pageID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Path != nil {
		updates["path"] = pagePath(*in.Path, page.Name)
	}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	if len(updates) == 0 {
		return page, nil
	}

	if err := db.Model(page).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating page: %w", err)
	}
	return s.loadPage(db, workspaceID, funnelID, pageID)
}

// DeletePage removes a page and closes the gap in positions.
func (s *Service) DeletePage(ctx context.Context, userID, workspaceID, funnelID, pageID int64) error {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermEditFunnels); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		page, err := s.loadPage(tx, workspaceID, funnelID, pageID)
		if err != nil {
			return err
		}
		if err := tx.Delete(page).Error; err != nil {
			return err
		}
		return tx.Model(&models.Page{}).
			Where("funnel_id = ? AND position > ?", funnelID, page.Position).
			Update("position", gorm.Expr("position - 1")).Error
	})
	if errors.Is(err, ErrPageNotFound) || errors.Is(err, ErrFunnelNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting page: %w", err)
	}
	return nil
}

// ReorderPages assigns positions in the order given. pageIDs must be a
// permutation of the funnel's pages.
func (s *Service) ReorderPages(ctx context.Context, userID, workspaceID, funnelID int64, pageIDs []int64) ([]models.Page, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermEditFunnels); err != nil {
		return nil, err
	}

	var pages []models.Page
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadFunnel(tx, workspaceID, funnelID); err != nil {
			return err
		}

		var existing []int64
		if err := tx.Model(&models.Page{}).Where("funnel_id = ?", funnelID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if !samePages(existing, pageIDs) {
			return ErrInvalidOrder
		}

		for pos, id := range pageIDs {
			if err := tx.Model(&models.Page{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return tx.Where("funnel_id = ?", funnelID).Order("position").Find(&pages).Error
	})
	if errors.Is(err, ErrInvalidOrder) || errors.Is(err, ErrFunnelNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("reordering pages: %w", err)
	}
	return pages, nil
}

func (s *Service) loadPage(db *gorm.DB, workspaceID, funnelID, pageID int64) (*models.Page, error) {
	if _, err := s.loadFunnel(db, workspaceID, funnelID); err != nil {
		return nil, err
	}

	var page models.Page
	if err := db.Where("id = ? AND funnel_id = ?", pageID, funnelID).First(&page).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("loading page: %w", err)
	}
	return &page, nil
}

func samePages(existing, given []int64) bool {
	if len(existing) != len(given) {
		return false
	}
	want := make(map[int64]bool, len(existing))
	for _, id := range existing {
		want[id] = true
	}
	for _, id := range given {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return true
}

func pagePath(path, name string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = util.Slugify(name)
	}
	return "/" + strings.TrimLeft(path, "/")
}
