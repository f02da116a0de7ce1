package models

import "time"

type IntegrationProvider string

const ProviderCircle IntegrationProvider = "circle"

// Integration stores one provider's credentials per workspace, sealed with
// pkg/crypto.
type Integration struct {
	Base
	WorkspaceID   int64               `gorm:"uniqueIndex:idx_integration_workspace_provider;not null" json:"workspace_id"`
	Provider      IntegrationProvider `gorm:"uniqueIndex:idx_integration_workspace_provider;size:32;not null" json:"provider"`
	EncryptedData []byte              `gorm:"not null" json:"-"`
	CommunityID   int64               `json:"community_id"`
	LastUsedAt    *time.Time          `json:"last_used_at,omitempty"`
}

func (Integration) TableName() string {
	return "integrations"
}

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationCompleted RegistrationStatus = "completed"
	RegistrationFailed    RegistrationStatus = "failed"
	RegistrationSkipped   RegistrationStatus = "skipped"
)

// Registration records a funnel purchase that should grant community access.
type Registration struct {
	Base
	WorkspaceID int64              `gorm:"index;not null" json:"workspace_id"`
	FunnelID    int64              `gorm:"index;not null" json:"funnel_id"`
	Email       string             `gorm:"not null" json:"email"`
	Name        string             `json:"name"`
	PaymentRef  string             `gorm:"uniqueIndex;not null" json:"payment_ref"`
	Status      RegistrationStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	LastError   string             `json:"last_error,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

func (Registration) TableName() string {
	return "registrations"
}
