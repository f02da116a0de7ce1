package models

import "github.com/hugh/funnel-builder/internal/allocation"

// AddOn is a purchased allocation increment. ExternalRef is the payment
// provider's subscription item id and makes webhook deliveries idempotent.
type AddOn struct {
	Base
	WorkspaceID int64                  `gorm:"index;not null" json:"workspace_id"`
	Type        allocation.AddOnType   `gorm:"size:32;not null" json:"type"`
	Quantity    int                    `gorm:"not null" json:"quantity"`
	Status      allocation.AddOnStatus `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	ExternalRef string                 `gorm:"uniqueIndex;not null" json:"external_ref"`
}

func (AddOn) TableName() string {
	return "add_ons"
}

func (a *AddOn) Allocation() allocation.AddOn {
	return allocation.AddOn{Type: a.Type, Quantity: a.Quantity, Status: a.Status}
}

// AllocationAddOns converts rows for the allocation calculators.
func AllocationAddOns(rows []AddOn) []allocation.AddOn {
	out := make([]allocation.AddOn, len(rows))
	for i := range rows {
		out[i] = rows[i].Allocation()
	}
	return out
}
