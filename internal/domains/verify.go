package domains

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/database/models"
)

// DeriveStatus maps the provider state to ours. A hostname is active once
// both the hostname and its certificate are active. It fails immediately
// when the provider has given up on it, and after maxChecks polls that
// still report validation errors. Everything else is pending.
func DeriveStatus(h *Hostname, checks, maxChecks int) models.DomainStatus {
	switch h.Status {
	case "blocked", "moved", "deleted":
		return models.DomainFailed
	}
	if h.Status == "active" && h.SSLStatus == "active" {
		return models.DomainActive
	}
	if len(h.Errors) > 0 && checks >= maxChecks {
		return models.DomainFailed
	}
	return models.DomainPending
}

// Check polls the provider for one domain and persists the result. Each
// call spends one unit of the maxChecks budget.
func (s *Service) Check(ctx context.Context, d *models.Domain) error {
	return s.poll(ctx, d, true)
}

// poll is Check with the budget made optional. User refreshes pass
// counted=false.
func (s *Service) poll(ctx context.Context, d *models.Domain, counted bool) error {
	if s.provider == nil {
		return ErrDomainsDisabled
	}

	h, err := s.provider.GetHostname(ctx, d.CloudflareID)
	switch {
	case errors.Is(err, ErrHostnameGone):
		d.Status = models.DomainFailed
		d.LastError = err.Error()
	case err != nil:
		return err
	default:
		if counted {
			d.Checks++
		}
		s.apply(d, h)
	}

	now := time.Now()
	d.LastCheckedAt = &now
	if err := s.db.WithContext(ctx).Model(d).
		Select("status", "ssl_status", "verification_name", "verification_value", "last_error", "checks", "last_checked_at").
		Updates(d).Error; err != nil {
		return fmt.Errorf("saving domain status: %w", err)
	}

	s.metrics.RecordDomainCheck(string(d.Status))
	s.logger.Debug("checked domain", "domain_id", d.ID, "hostname", d.Hostname, "status", d.Status, "ssl_status", d.SSLStatus)
	return nil
}

// Verify is the body of the background verification task. It reports
// whether the domain has left the pending state.
func (s *Service) Verify(ctx context.Context, domainID int64) (bool, error) {
	var d models.Domain
	if err := s.db.WithContext(ctx).First(&d, domainID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrDomainNotFound
		}
		return false, fmt.Errorf("loading domain %d: %w", domainID, err)
	}
	if d.Status != models.DomainPending {
		return true, nil
	}
	if err := s.Check(ctx, &d); err != nil {
		return false, err
	}
	return d.Status != models.DomainPending, nil
}

// Sweep re-checks every pending domain, least recently checked first, and
// returns how many it checked. A failure on one domain does not stop the
// rest.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	if s.provider == nil {
		return 0, nil
	}

	var pending []models.Domain
	if err := s.db.WithContext(ctx).
		Where("status = ? AND cloudflare_id <> ''", models.DomainPending).
		Order("last_checked_at").
		Limit(limit).
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("listing pending domains: %w", err)
	}

	checked := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return checked, err
		}
		if err := s.Check(ctx, &pending[i]); err != nil {
			s.logger.Warn("domain check failed", "domain_id", pending[i].ID, "error", err)
			continue
		}
		checked++
	}
	return checked, nil
}

func (s *Service) apply(d *models.Domain, h *Hostname) {
	d.Status = DeriveStatus(h, d.Checks, s.maxChecks)
	d.SSLStatus = h.SSLStatus
	d.VerificationName = h.VerificationName
	d.VerificationValue = h.VerificationValue
	d.LastError = strings.Join(h.Errors, "; ")
}
