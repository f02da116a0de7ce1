package dto

import (
	"strings"

	"github.com/hugh/funnel-builder/internal/api/validation"
)

type CreateDomainRequest struct {
	Hostname string `json:"hostname"`
}

func (r CreateDomainRequest) Validate() map[string]string {
	errors := make(map[string]string)
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(r.Hostname)), ".")
	switch {
	case host == "":
		errors["hostname"] = "Hostname is required"
	case !validation.IsValidDomain(host):
		errors["hostname"] = "Hostname is invalid"
	}
	return errors
}

// ConnectDomainRequest attaches the domain to a funnel; a null funnel_id
// detaches it.
type ConnectDomainRequest struct {
	FunnelID *int64 `json:"funnel_id"`
}

func (r ConnectDomainRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.FunnelID != nil && *r.FunnelID <= 0 {
		errors["funnel_id"] = "Funnel ID must be positive"
	}
	return errors
}
