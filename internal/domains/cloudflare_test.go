package domains

import (
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"github.com/stretchr/testify/assert"

	"github.com/hugh/funnel-builder/internal/database/models"
)

func TestFromCloudflare(t *testing.T) {
	ch := cloudflare.CustomHostname{
		ID:                 "ch_1",
		Hostname:           "shop.example.com",
		Status:             "pending",
		VerificationErrors: []string{"custom hostname does not CNAME to this zone."},
		OwnershipVerification: cloudflare.CustomHostnameOwnershipVerification{
			Type:  "txt",
			Name:  "_cf-custom-hostname.shop.example.com",
			Value: "abc123",
		},
		SSL: &cloudflare.CustomHostnameSSL{Status: "pending_validation"},
	}

	h := fromCloudflare(ch)
	assert.Equal(t, "ch_1", h.ID)
	assert.Equal(t, "pending", h.Status)
	assert.Equal(t, "pending_validation", h.SSLStatus)
	assert.Equal(t, "_cf-custom-hostname.shop.example.com", h.VerificationName)
	assert.Equal(t, "abc123", h.VerificationValue)
	assert.Len(t, h.Errors, 1)

	bare := fromCloudflare(cloudflare.CustomHostname{ID: "ch_2", Status: "active"})
	assert.Empty(t, bare.SSLStatus)
	assert.Empty(t, bare.Errors)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name   string
		h      Hostname
		checks int
		want   models.DomainStatus
	}{
		{"both active", Hostname{Status: "active", SSLStatus: "active"}, 1, models.DomainActive},
		{"hostname active, cert pending", Hostname{Status: "active", SSLStatus: "pending_validation"}, 1, models.DomainPending},
		{"pending without errors", Hostname{Status: "pending"}, 50, models.DomainPending},
		{"errors within budget", Hostname{Status: "pending", Errors: []string{"no CNAME"}}, 11, models.DomainPending},
		{"errors after budget", Hostname{Status: "pending", Errors: []string{"no CNAME"}}, 12, models.DomainFailed},
		{"blocked", Hostname{Status: "blocked"}, 0, models.DomainFailed},
		{"moved", Hostname{Status: "moved"}, 0, models.DomainFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(&tt.h, tt.checks, 12))
		})
	}
}
