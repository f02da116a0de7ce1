package billing

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/cache"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/metrics"
)

var (
	ErrUnknownWorkspace = errors.New("unknown workspace")
	ErrUnknownAddOn     = errors.New("unknown add-on")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrInvalidEvent     = errors.New("invalid event payload")
)

// PurchaseRecorder receives funnel purchases reported by the payment
// provider.
type PurchaseRecorder interface {
	RecordPurchase(ctx context.Context, p Purchase) error
}

type Service struct {
	db        *gorm.DB
	cache     *cache.Cache
	ttl       time.Duration
	resolver  *access.Resolver
	purchases PurchaseRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Options struct {
	Cache     *cache.Cache
	TTL       time.Duration
	Purchases PurchaseRecorder
	Metrics   *metrics.Metrics
}

func NewService(db *gorm.DB, resolver *access.Resolver, logger *slog.Logger, opts Options) *Service {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultEntitlementsTTL
	}
	return &Service{
		db:        db,
		cache:     opts.Cache,
		ttl:       ttl,
		resolver:  resolver,
		purchases: opts.Purchases,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// SetPurchaseRecorder wires the purchase handler after construction, since
// it usually depends on services built after billing.
func (s *Service) SetPurchaseRecorder(p PurchaseRecorder) {
	s.purchases = p
}

// ListAddOns returns every add-on row of the workspace. Any member may see
// them.
func (s *Service) ListAddOns(ctx context.Context, userID, workspaceID int64) ([]models.AddOn, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID); err != nil {
		return nil, err
	}

	var rows []models.AddOn
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing add-ons: %w", err)
	}
	return rows, nil
}

// VerifySecret compares a webhook secret in constant time. An unconfigured
// secret rejects everything.
func VerifySecret(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
