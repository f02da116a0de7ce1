package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hugh/funnel-builder/internal/domains"
	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/internal/notify"
)

// SweepBatch bounds how many pending domains one sweep re-checks.
const SweepBatch = 200

// ErrDomainPending asks asynq to retry a verification later. It is the
// normal outcome while DNS propagates, not a failure.
var ErrDomainPending = errors.New("domain still pending")

type DomainVerifier interface {
	Verify(ctx context.Context, domainID int64) (bool, error)
	Sweep(ctx context.Context, limit int) (int, error)
}

type InvitationSender interface {
	Send(ctx context.Context, invitationID int64) error
}

type RegistrationProcessor interface {
	ProcessRegistration(ctx context.Context, registrationID int64) error
	FailRegistration(ctx context.Context, registrationID int64, cause error) error
}

type Handler struct {
	domains       DomainVerifier
	invitations   InvitationSender
	registrations RegistrationProcessor
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

type Deps struct {
	Domains       DomainVerifier
	Invitations   InvitationSender
	Registrations RegistrationProcessor
	Metrics       *metrics.Metrics
}

func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		domains:       deps.Domains,
		invitations:   deps.Invitations,
		registrations: deps.Registrations,
		metrics:       deps.Metrics,
		logger:        logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.Use(h.observe)
	mux.HandleFunc(TypeDomainVerify, h.HandleDomainVerify)
	mux.HandleFunc(TypeDomainSweep, h.HandleDomainSweep)
	mux.HandleFunc(TypeInvitationEmail, h.HandleInvitationEmail)
	mux.HandleFunc(TypeCircleRegistration, h.HandleCircleRegistration)
}

func (h *Handler) observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		if errors.Is(err, ErrDomainPending) {
			h.metrics.RecordTask(t.Type(), nil)
		} else {
			h.metrics.RecordTask(t.Type(), err)
		}
		h.logger.Debug("task processed", "type", t.Type(), "duration", time.Since(start), "error", err)
		return err
	})
}

func (h *Handler) HandleDomainVerify(ctx context.Context, t *asynq.Task) error {
	var payload DomainVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	done, err := h.domains.Verify(ctx, payload.DomainID)
	if errors.Is(err, domains.ErrDomainNotFound) {
		h.logger.Info("domain removed before verification", "domain_id", payload.DomainID)
		return nil
	}
	if err != nil {
		return err
	}
	if !done {
		return ErrDomainPending
	}

	h.logger.Info("domain verification finished", "domain_id", payload.DomainID)
	return nil
}

func (h *Handler) HandleDomainSweep(ctx context.Context, _ *asynq.Task) error {
	checked, err := h.domains.Sweep(ctx, SweepBatch)
	if err != nil {
		return err
	}
	h.logger.Info("domain sweep completed", "checked", checked)
	return nil
}

func (h *Handler) HandleInvitationEmail(ctx context.Context, t *asynq.Task) error {
	var payload InvitationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	err := h.invitations.Send(ctx, payload.InvitationID)
	if errors.Is(err, notify.ErrInvitationGone) {
		h.logger.Info("skipping stale invitation", "invitation_id", payload.InvitationID)
		return nil
	}
	return err
}

func (h *Handler) HandleCircleRegistration(ctx context.Context, t *asynq.Task) error {
	var payload CircleRegistrationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	err := h.registrations.ProcessRegistration(ctx, payload.RegistrationID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, integrations.ErrRegistrationMissing):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if lastAttempt(ctx) {
		if ferr := h.registrations.FailRegistration(ctx, payload.RegistrationID, err); ferr != nil {
			h.logger.Error("failed to mark registration failed", "registration_id", payload.RegistrationID, "error", ferr)
		}
	}
	return err
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// RetryDelay spaces domain re-checks linearly up to half an hour and uses
// asynq's default backoff for everything else.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	if t.Type() == TypeDomainVerify && errors.Is(err, ErrDomainPending) {
		return min(time.Duration(n+1)*2*time.Minute, 30*time.Minute)
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}

// ErrorHandler logs task failures. Pending domains are logged at debug.
func ErrorHandler(logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
		if errors.Is(err, ErrDomainPending) {
			logger.Debug("domain still pending, will retry", "payload", string(t.Payload()))
			return
		}
		retried, _ := asynq.GetRetryCount(ctx)
		logger.Error("task failed", "type", t.Type(), "retried", retried, "error", err)
	})
}
