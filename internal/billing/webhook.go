package billing

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
)

type EventType string

const (
	EventAddOnActivated   EventType = "addon.activated"
	EventAddOnDeactivated EventType = "addon.deactivated"
	EventPlanChanged      EventType = "plan.changed"
	EventFunnelPurchased  EventType = "funnel.purchased"
)

// Event is the payment provider's webhook body.
type Event struct {
	ID          string              `json:"id"`
	Type        EventType           `json:"type"`
	WorkspaceID int64               `json:"workspace_id"`
	AddOn       *AddOnPayload       `json:"add_on,omitempty"`
	Plan        allocation.PlanTier `json:"plan,omitempty"`
	Purchase    *Purchase           `json:"purchase,omitempty"`
}

type AddOnPayload struct {
	ExternalRef string                 `json:"external_ref"`
	Type        allocation.AddOnType   `json:"type"`
	Quantity    int                    `json:"quantity"`
	Status      allocation.AddOnStatus `json:"status,omitempty"`
}

type Purchase struct {
	WorkspaceID int64  `json:"-"`
	FunnelID    int64  `json:"funnel_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PaymentRef  string `json:"payment_ref"`
}

// HandleEvent applies a webhook. Redelivered events are idempotent: add-ons
// are keyed by ExternalRef and purchases by PaymentRef.
func (s *Service) HandleEvent(ctx context.Context, ev Event) error {
	if ev.WorkspaceID <= 0 {
		return fmt.Errorf("%w: workspace_id is required", ErrInvalidEvent)
	}

	var err error
	switch ev.Type {
	case EventAddOnActivated:
		err = s.activateAddOn(ctx, ev)
	case EventAddOnDeactivated:
		err = s.deactivateAddOn(ctx, ev)
	case EventPlanChanged:
		err = s.changePlan(ctx, ev)
	case EventFunnelPurchased:
		return s.recordPurchase(ctx, ev)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if err != nil {
		return err
	}

	if err := s.Invalidate(ctx, ev.WorkspaceID); err != nil {
		s.logger.Error("failed to invalidate entitlements", "workspace_id", ev.WorkspaceID, "error", err)
	}
	s.logger.Info("applied billing event", "event_id", ev.ID, "type", ev.Type, "workspace_id", ev.WorkspaceID)
	return nil
}

func (s *Service) activateAddOn(ctx context.Context, ev Event) error {
	p := ev.AddOn
	if p == nil || p.ExternalRef == "" || !p.Type.IsValid() || p.Quantity <= 0 {
		return fmt.Errorf("%w: add_on needs external_ref, a known type and a positive quantity", ErrInvalidEvent)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireWorkspace(tx, ev.WorkspaceID); err != nil {
			return err
		}

		var row models.AddOn
		err := tx.Where("external_ref = ?", p.ExternalRef).First(&row).Error
		switch {
		case database.IsNotFound(err):
			row = models.AddOn{
				WorkspaceID: ev.WorkspaceID,
				Type:        p.Type,
				Quantity:    p.Quantity,
				Status:      allocation.AddOnActive,
				ExternalRef: p.ExternalRef,
			}
			return tx.Create(&row).Error
		case err != nil:
			return fmt.Errorf("loading add-on: %w", err)
		}

		if row.WorkspaceID != ev.WorkspaceID {
			return fmt.Errorf("%w: add-on %s belongs to another workspace", ErrInvalidEvent, p.ExternalRef)
		}
		return tx.Model(&row).Updates(map[string]any{
			"type":     p.Type,
			"quantity": p.Quantity,
			"status":   allocation.AddOnActive,
		}).Error
	})
}

func (s *Service) deactivateAddOn(ctx context.Context, ev Event) error {
	p := ev.AddOn
	if p == nil || p.ExternalRef == "" {
		return fmt.Errorf("%w: add_on.external_ref is required", ErrInvalidEvent)
	}

	status := allocation.AddOnInactive
	if p.Status == allocation.AddOnCancelled {
		status = allocation.AddOnCancelled
	}

	res := s.db.WithContext(ctx).Model(&models.AddOn{}).
		Where("external_ref = ? AND workspace_id = ?", p.ExternalRef, ev.WorkspaceID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("deactivating add-on: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAddOn
	}
	return nil
}

// changePlan never deletes anything on downgrade; the guards simply refuse
// new resources until usage is back under the new ceilings.
func (s *Service) changePlan(ctx context.Context, ev Event) error {
	if !ev.Plan.IsValid() {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidEvent, ev.Plan)
	}

	res := s.db.WithContext(ctx).Model(&models.Workspace{}).
		Where("id = ?", ev.WorkspaceID).
		Update("plan", ev.Plan)
	if res.Error != nil {
		return fmt.Errorf("changing plan: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownWorkspace
	}
	return nil
}

func (s *Service) recordPurchase(ctx context.Context, ev Event) error {
	p := ev.Purchase
	if p == nil || p.FunnelID <= 0 || p.Email == "" || p.PaymentRef == "" {
		return fmt.Errorf("%w: purchase needs funnel_id, email and payment_ref", ErrInvalidEvent)
	}
	if s.purchases == nil {
		s.logger.Warn("dropping purchase, no recorder configured", "payment_ref", p.PaymentRef)
		return nil
	}

	purchase := *p
	purchase.WorkspaceID = ev.WorkspaceID
	return s.purchases.RecordPurchase(ctx, purchase)
}

func requireWorkspace(tx *gorm.DB, id int64) error {
	var count int64
	if err := tx.Model(&models.Workspace{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("checking workspace: %w", err)
	}
	if count == 0 {
		return ErrUnknownWorkspace
	}
	return nil
}
