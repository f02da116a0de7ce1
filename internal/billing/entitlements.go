package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/cache"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
)

// Entitlements is what a workspace has paid for: its tier and every add-on
// row, active or not. The allocation calculators filter by status.
type Entitlements struct {
	WorkspaceID int64               `json:"workspace_id"`
	Plan        allocation.PlanTier `json:"plan"`
	AddOns      []allocation.AddOn  `json:"add_ons"`
}

func entitlementsKey(workspaceID, gen int64) string {
	return "entitlements:" + strconv.FormatInt(workspaceID, 10) + ":" + strconv.FormatInt(gen, 10)
}

func generationKey(workspaceID int64) string {
	return "entitlements-gen:" + strconv.FormatInt(workspaceID, 10)
}

// Entitlements reads through the Redis cache. Entries are keyed by a
// per-workspace generation that Invalidate bumps, and the generation is read
// before the rows are loaded: a load that raced with a billing write can
// only fill a key that is no longer read.
//
// The result is for display. Allocation guards must call LoadAddOns on the
// transaction that holds the workspace lock.
func (s *Service) Entitlements(ctx context.Context, workspaceID int64) (*Entitlements, error) {
	gen, cacheable := s.cache.Generation(ctx, generationKey(workspaceID))
	if cacheable {
		var cached Entitlements
		if err := s.cache.GetJSON(ctx, entitlementsKey(workspaceID, gen), &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
	}
	s.metrics.RecordCacheLookup(false)

	ent, err := s.loadEntitlements(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.cache.SetJSON(ctx, entitlementsKey(workspaceID, gen), ent, s.ttl)
	}
	return ent, nil
}

func (s *Service) loadEntitlements(ctx context.Context, workspaceID int64) (*Entitlements, error) {
	db := s.db.WithContext(ctx)

	var ws models.Workspace
	if err := db.Select("id", "plan").First(&ws, workspaceID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUnknownWorkspace
		}
		return nil, fmt.Errorf("loading workspace plan: %w", err)
	}

	addOns, err := LoadAddOns(db, workspaceID)
	if err != nil {
		return nil, err
	}

	return &Entitlements{
		WorkspaceID: workspaceID,
		Plan:        ws.Plan,
		AddOns:      addOns,
	}, nil
}

// LoadAddOns reads every add-on row of the workspace on db, bypassing the
// cache. Pass the transaction handle when the result feeds a guard.
func LoadAddOns(db *gorm.DB, workspaceID int64) ([]allocation.AddOn, error) {
	var rows []models.AddOn
	if err := db.Where("workspace_id = ?", workspaceID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading add-ons: %w", err)
	}
	return models.AllocationAddOns(rows), nil
}

// Invalidate retires every cached entitlements entry of a workspace and
// drops the current one. A racing load may still write under the old
// generation; that entry is never read and expires with its TTL.
func (s *Service) Invalidate(ctx context.Context, workspaceID int64) error {
	gen, ok := s.cache.Generation(ctx, generationKey(workspaceID))
	if err := s.cache.Bump(ctx, generationKey(workspaceID)); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.cache.Delete(ctx, entitlementsKey(workspaceID, gen))
}

const defaultEntitlementsTTL = 5 * time.Minute
