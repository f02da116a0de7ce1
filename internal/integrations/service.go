package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/pkg/crypto"
)

var (
	ErrNotConnected        = errors.New("integration is not connected")
	ErrInvalidToken        = errors.New("api token is required")
	ErrInvalidCommunity    = errors.New("community id must be positive")
	ErrRegistrationMissing = errors.New("registration not found")
	ErrFunnelMismatch      = errors.New("funnel does not belong to the workspace")
)

// RegistrationScheduler queues the Circle invite for a recorded purchase.
type RegistrationScheduler interface {
	ScheduleRegistration(ctx context.Context, registrationID int64) error
}

type circleCredentials struct {
	Token string `json:"token"`
}

type Service struct {
	db        *gorm.DB
	resolver  *access.Resolver
	enc       *crypto.Encryptor
	circle    CircleAPI
	scheduler RegistrationScheduler
	logger    *slog.Logger
}

func NewService(db *gorm.DB, resolver *access.Resolver, enc *crypto.Encryptor, circle CircleAPI, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		resolver: resolver,
		enc:      enc,
		circle:   circle,
		logger:   logger,
	}
}

// SetScheduler wires the task enqueuer after construction.
func (s *Service) SetScheduler(sch RegistrationScheduler) {
	s.scheduler = sch
}

type CircleInput struct {
	APIToken    string
	CommunityID int64
}

// Status describes a workspace's Circle connection without exposing the
// token.
type Status struct {
	Provider    models.IntegrationProvider `json:"provider"`
	Connected   bool                       `json:"connected"`
	CommunityID int64                      `json:"community_id,omitempty"`
	TokenHint   string                     `json:"token_hint,omitempty"`
	LastUsedAt  *time.Time                 `json:"last_used_at,omitempty"`
	UpdatedAt   *time.Time                 `json:"updated_at,omitempty"`
}

// SaveCircle checks the token against Circle, then stores it sealed. An
// existing connection is replaced.
func (s *Service) SaveCircle(ctx context.Context, userID, workspaceID int64, in CircleInput) (*Status, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageIntegrations); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(in.APIToken)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if in.CommunityID <= 0 {
		return nil, ErrInvalidCommunity
	}

	if err := s.circle.CheckCommunity(ctx, token, in.CommunityID); err != nil {
		return nil, err
	}

	sealed, err := s.enc.SealJSON(circleCredentials{Token: token})
	if err != nil {
		return nil, fmt.Errorf("sealing token: %w", err)
	}

	var row models.Integration
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("workspace_id = ? AND provider = ?", workspaceID, models.ProviderCircle).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = models.Integration{
				WorkspaceID:   workspaceID,
				Provider:      models.ProviderCircle,
				EncryptedData: sealed,
				CommunityID:   in.CommunityID,
			}
			return tx.Create(&row).Error
		case err != nil:
			return err
		}
		row.EncryptedData = sealed
		row.CommunityID = in.CommunityID
		return tx.Select("encrypted_data", "community_id").Updates(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("saving integration: %w", err)
	}

	s.logger.Info("connected circle", "workspace_id", workspaceID, "community_id", in.CommunityID, "user_id", userID)
	return s.status(&row, token), nil
}

func (s *Service) Status(ctx context.Context, userID, workspaceID int64) (*Status, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageIntegrations); err != nil {
		return nil, err
	}

	row, err := s.load(s.db.WithContext(ctx), workspaceID)
	if errors.Is(err, ErrNotConnected) {
		return &Status{Provider: models.ProviderCircle}, nil
	}
	if err != nil {
		return nil, err
	}

	var creds circleCredentials
	if err := s.enc.OpenJSON(row.EncryptedData, &creds); err != nil {
		s.logger.Error("failed to open circle credentials", "workspace_id", workspaceID, "error", err)
	}
	return s.status(row, creds.Token), nil
}

func (s *Service) Remove(ctx context.Context, userID, workspaceID int64) error {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageIntegrations); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("workspace_id = ? AND provider = ?", workspaceID, models.ProviderCircle).
		Delete(&models.Integration{})
	if res.Error != nil {
		return fmt.Errorf("removing integration: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotConnected
	}

	s.logger.Info("disconnected circle", "workspace_id", workspaceID, "user_id", userID)
	return nil
}

// RecordPurchase stores a registration for a paid funnel and queues the
// Circle invite. Redelivered payments are ignored by payment reference.
// Workspaces without Circle get a skipped registration.
func (s *Service) RecordPurchase(ctx context.Context, p billing.Purchase) error {
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Funnel{}).
		Where("id = ? AND workspace_id = ?", p.FunnelID, p.WorkspaceID).
		Count(&n).Error; err != nil {
		return fmt.Errorf("checking funnel: %w", err)
	}
	if n == 0 {
		return ErrFunnelMismatch
	}

	status := models.RegistrationPending
	if _, err := s.load(db, p.WorkspaceID); errors.Is(err, ErrNotConnected) {
		status = models.RegistrationSkipped
	} else if err != nil {
		return err
	}

	reg := models.Registration{
		WorkspaceID: p.WorkspaceID,
		FunnelID:    p.FunnelID,
		Email:       strings.ToLower(strings.TrimSpace(p.Email)),
		Name:        strings.TrimSpace(p.Name),
		PaymentRef:  p.PaymentRef,
		Status:      status,
	}
	if err := db.Create(&reg).Error; err != nil {
		if !database.IsDuplicate(err) {
			return fmt.Errorf("recording purchase: %w", err)
		}
		// A redelivery whose first attempt never got queued is queued now.
		if err := db.Where("payment_ref = ?", p.PaymentRef).First(&reg).Error; err != nil {
			return fmt.Errorf("loading registration: %w", err)
		}
		s.logger.Info("duplicate purchase", "payment_ref", p.PaymentRef, "registration_id", reg.ID, "status", reg.Status)
		return s.schedule(ctx, &reg)
	}

	s.logger.Info("recorded purchase",
		"workspace_id", p.WorkspaceID,
		"funnel_id", p.FunnelID,
		"registration_id", reg.ID,
		"status", reg.Status,
	)
	return s.schedule(ctx, &reg)
}

func (s *Service) schedule(ctx context.Context, reg *models.Registration) error {
	if reg.Status != models.RegistrationPending || s.scheduler == nil {
		return nil
	}
	if err := s.scheduler.ScheduleRegistration(ctx, reg.ID); err != nil {
		return fmt.Errorf("scheduling registration: %w", err)
	}
	return nil
}

// ProcessRegistration invites the buyer into the workspace's community.
// Rejections mark the registration failed and return nil; transient errors
// are returned so the caller can retry.
func (s *Service) ProcessRegistration(ctx context.Context, registrationID int64) error {
	db := s.db.WithContext(ctx)

	var reg models.Registration
	if err := db.First(&reg, registrationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRegistrationMissing
		}
		return fmt.Errorf("loading registration: %w", err)
	}
	if reg.Status != models.RegistrationPending {
		return nil
	}

	row, err := s.load(db, reg.WorkspaceID)
	if errors.Is(err, ErrNotConnected) {
		return s.finish(ctx, &reg, models.RegistrationSkipped, "circle is not connected")
	}
	if err != nil {
		return err
	}

	var creds circleCredentials
	if err := s.enc.OpenJSON(row.EncryptedData, &creds); err != nil {
		return s.finish(ctx, &reg, models.RegistrationFailed, "stored credentials could not be decrypted")
	}

	err = s.circle.InviteMember(ctx, creds.Token, row.CommunityID, reg.Email, reg.Name)
	switch {
	case errors.Is(err, ErrCircleRejected):
		return s.finish(ctx, &reg, models.RegistrationFailed, err.Error())
	case err != nil:
		if uerr := db.Model(&reg).Update("last_error", err.Error()).Error; uerr != nil {
			s.logger.Error("failed to record registration error", "registration_id", reg.ID, "error", uerr)
		}
		return err
	}

	now := time.Now()
	if err := db.Model(row).Update("last_used_at", &now).Error; err != nil {
		s.logger.Error("failed to touch integration", "integration_id", row.ID, "error", err)
	}
	return s.finish(ctx, &reg, models.RegistrationCompleted, "")
}

// FailRegistration marks a pending registration failed once retries are
// exhausted.
func (s *Service) FailRegistration(ctx context.Context, registrationID int64, cause error) error {
	db := s.db.WithContext(ctx)
	var reg models.Registration
	if err := db.First(&reg, registrationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRegistrationMissing
		}
		return fmt.Errorf("loading registration: %w", err)
	}
	if reg.Status != models.RegistrationPending {
		return nil
	}
	msg := "retries exhausted"
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, &reg, models.RegistrationFailed, msg)
}

// ListRegistrations returns the workspace's most recent registrations.
func (s *Service) ListRegistrations(ctx context.Context, userID, workspaceID int64, limit int) ([]models.Registration, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageIntegrations); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var out []models.Registration
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	return out, nil
}

func (s *Service) finish(ctx context.Context, reg *models.Registration, status models.RegistrationStatus, lastError string) error {
	updates := map[string]any{
		"status":     status,
		"last_error": lastError,
	}
	if status == models.RegistrationCompleted {
		updates["completed_at"] = time.Now()
	}
	if err := s.db.WithContext(ctx).Model(reg).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating registration: %w", err)
	}

	level := slog.LevelInfo
	if status == models.RegistrationFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "registration finished",
		"registration_id", reg.ID,
		"workspace_id", reg.WorkspaceID,
		"status", status,
		"error", lastError,
	)
	return nil
}

func (s *Service) load(db *gorm.DB, workspaceID int64) (*models.Integration, error) {
	var row models.Integration
	err := db.Where("workspace_id = ? AND provider = ?", workspaceID, models.ProviderCircle).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading integration: %w", err)
	}
	return &row, nil
}

func (s *Service) status(row *models.Integration, token string) *Status {
	st := &Status{
		Provider:    row.Provider,
		Connected:   true,
		CommunityID: row.CommunityID,
		LastUsedAt:  row.LastUsedAt,
		UpdatedAt:   &row.UpdatedAt,
	}
	if len(token) >= 4 {
		st.TokenHint = "..." + token[len(token)-4:]
	}
	return st
}
