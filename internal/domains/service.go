package domains

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/api/validation"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/funnels"
	"github.com/hugh/funnel-builder/internal/metrics"
)

var (
	ErrDomainNotFound  = errors.New("domain not found")
	ErrInvalidHostname = errors.New("invalid hostname")
	ErrHostnameTaken   = errors.New("hostname is already connected to a workspace")
	ErrDomainsDisabled = errors.New("custom domains are not configured")
)

// DefaultMaxChecks bounds how many times a hostname reporting errors is
// polled before it is marked failed.
const DefaultMaxChecks = 12

// VerificationScheduler queues a background re-check of a new domain.
type VerificationScheduler interface {
	ScheduleVerification(ctx context.Context, domainID int64) error
}

type Service struct {
	db          *gorm.DB
	resolver    *access.Resolver
	provider    HostnameProvider
	scheduler   VerificationScheduler
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxChecks   int
	cnameTarget string
}

type Options struct {
	Scheduler   VerificationScheduler
	Metrics     *metrics.Metrics
	MaxChecks   int
	CNAMETarget string
}

// NewService creates the domain service. provider may be nil, in which case
// creating and refreshing domains fails with ErrDomainsDisabled.
func NewService(db *gorm.DB, resolver *access.Resolver, provider HostnameProvider, logger *slog.Logger, opts Options) *Service {
	maxChecks := opts.MaxChecks
	if maxChecks <= 0 {
		maxChecks = DefaultMaxChecks
	}
	return &Service{
		db:          db,
		resolver:    resolver,
		provider:    provider,
		scheduler:   opts.Scheduler,
		metrics:     opts.Metrics,
		logger:      logger,
		maxChecks:   maxChecks,
		cnameTarget: opts.CNAMETarget,
	}
}

// SetScheduler wires the task enqueuer after construction.
func (s *Service) SetScheduler(sch VerificationScheduler) {
	s.scheduler = sch
}

// NormalizeHostname lowercases the hostname and strips a trailing dot.
func NormalizeHostname(raw string) (string, error) {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if !validation.IsValidDomain(host) {
		return "", ErrInvalidHostname
	}
	return host, nil
}

// Create registers the hostname with the provider and stores it. New
// domains start pending and are re-checked in the background.
func (s *Service) Create(ctx context.Context, userID, workspaceID int64, hostname string) (*models.Domain, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermCreateDomains); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrDomainsDisabled
	}

	host, err := NormalizeHostname(hostname)
	if err != nil {
		return nil, err
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Domain{}).Where("hostname = ?", host).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("checking hostname: %w", err)
	}
	if n > 0 {
		return nil, ErrHostnameTaken
	}

	h, err := s.provider.CreateHostname(ctx, host)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	d := models.Domain{
		WorkspaceID:   workspaceID,
		Hostname:      host,
		CloudflareID:  h.ID,
		LastCheckedAt: &now,
	}
	s.apply(&d, h)

	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		if derr := s.provider.DeleteHostname(ctx, h.ID); derr != nil {
			s.logger.Error("failed to roll back custom hostname", "hostname", host, "error", derr)
		}
		if database.IsDuplicate(err) {
			return nil, ErrHostnameTaken
		}
		return nil, fmt.Errorf("saving domain: %w", err)
	}

	s.logger.Info("created domain", "workspace_id", workspaceID, "domain_id", d.ID, "hostname", host, "status", d.Status)

	if d.Status == models.DomainPending && s.scheduler != nil {
		if err := s.scheduler.ScheduleVerification(ctx, d.ID); err != nil {
			s.logger.Error("failed to schedule domain verification", "domain_id", d.ID, "error", err)
		}
	}
	return s.view(&d), nil
}

func (s *Service) List(ctx context.Context, userID, workspaceID int64) ([]models.Domain, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermViewFunnels); err != nil {
		return nil, err
	}

	var out []models.Domain
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing domains: %w", err)
	}
	for i := range out {
		out[i].CNAMETarget = s.cnameTarget
	}
	return out, nil
}

// Connect points the domain at a funnel of the same workspace. A nil
// funnelID disconnects it.
func (s *Service) Connect(ctx context.Context, userID, workspaceID, domainID int64, funnelID *int64) (*models.Domain, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermConnectDomains); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	d, err := s.load(db, workspaceID, domainID)
	if err != nil {
		return nil, err
	}

	if funnelID != nil {
		var n int64
		if err := db.Model(&models.Funnel{}).
			Where("id = ? AND workspace_id = ?", *funnelID, workspaceID).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("checking funnel: %w", err)
		}
		if n == 0 {
			return nil, funnels.ErrFunnelNotFound
		}
	}

	if err := db.Model(d).Update("funnel_id", funnelID).Error; err != nil {
		return nil, fmt.Errorf("connecting domain: %w", err)
	}
	d.FunnelID = funnelID
	return s.view(d), nil
}

func (s *Service) Disconnect(ctx context.Context, userID, workspaceID, domainID int64) (*models.Domain, error) {
	return s.Connect(ctx, userID, workspaceID, domainID, nil)
}

// Refresh polls the provider once on the user's behalf. It does not count
// towards the verification budget.
func (s *Service) Refresh(ctx context.Context, userID, workspaceID, domainID int64) (*models.Domain, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageDomains); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrDomainsDisabled
	}

	d, err := s.load(s.db.WithContext(ctx), workspaceID, domainID)
	if err != nil {
		return nil, err
	}
	if err := s.poll(ctx, d, false); err != nil {
		return nil, err
	}
	return s.view(d), nil
}

// Delete removes the custom hostname at the provider first so a failure
// there leaves the row in place to retry.
func (s *Service) Delete(ctx context.Context, userID, workspaceID, domainID int64) error {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermDeleteDomains); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	d, err := s.load(db, workspaceID, domainID)
	if err != nil {
		return err
	}

	if d.CloudflareID != "" && s.provider != nil {
		if err := s.provider.DeleteHostname(ctx, d.CloudflareID); err != nil {
			return err
		}
	}
	if err := db.Delete(d).Error; err != nil {
		return fmt.Errorf("deleting domain: %w", err)
	}

	s.logger.Info("deleted domain", "workspace_id", workspaceID, "domain_id", domainID, "hostname", d.Hostname)
	return nil
}

func (s *Service) load(db *gorm.DB, workspaceID, domainID int64) (*models.Domain, error) {
	var d models.Domain
	if err := db.Where("id = ? AND workspace_id = ?", domainID, workspaceID).First(&d).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("loading domain: %w", err)
	}
	return &d, nil
}

func (s *Service) view(d *models.Domain) *models.Domain {
	d.CNAMETarget = s.cnameTarget
	return d
}
