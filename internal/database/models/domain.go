package models

import "time"

type DomainStatus string

const (
	DomainPending DomainStatus = "pending"
	DomainActive  DomainStatus = "active"
	DomainFailed  DomainStatus = "failed"
)

type Domain struct {
	Base
	WorkspaceID  int64        `gorm:"index;not null" json:"workspace_id"`
	FunnelID     *int64       `gorm:"index" json:"funnel_id,omitempty"`
	Hostname     string       `gorm:"uniqueIndex;not null" json:"hostname"`
	CloudflareID string       `gorm:"index" json:"-"`
	Status       DomainStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	SSLStatus    string       `json:"ssl_status"`

	// TXT record the customer must publish to prove ownership, if required.
	VerificationName  string `json:"verification_name,omitempty"`
	VerificationValue string `json:"verification_value,omitempty"`

	LastError     string     `json:"last_error,omitempty"`
	Checks        int        `gorm:"not null;default:0" json:"checks"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`

	// CNAMETarget is filled in on responses so clients know where to point
	// the hostname.
	CNAMETarget string `gorm:"-" json:"cname_target,omitempty"`
}

func (Domain) TableName() string {
	return "domains"
}
