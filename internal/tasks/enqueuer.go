package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hugh/funnel-builder/pkg/queue"
)

const (
	invitationRetries   = 5
	registrationRetries = 8
	// First domain re-check waits for DNS changes to have a chance.
	firstVerifyDelay = time.Minute
)

// TaskClient is the subset of *asynq.Client the enqueuer uses.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns service callbacks into queued tasks. It implements
// workspace.InvitationNotifier, domains.VerificationScheduler and
// integrations.RegistrationScheduler.
type Enqueuer struct {
	client        TaskClient
	verifyRetries int
	logger        *slog.Logger
}

// NewEnqueuer creates an enqueuer. verifyRetries bounds how many times a
// pending domain is re-checked by its own task.
func NewEnqueuer(client TaskClient, verifyRetries int, logger *slog.Logger) *Enqueuer {
	if verifyRetries <= 0 {
		verifyRetries = 12
	}
	return &Enqueuer{client: client, verifyRetries: verifyRetries, logger: logger}
}

func (e *Enqueuer) ScheduleVerification(ctx context.Context, domainID int64) error {
	task, err := NewDomainVerifyTask(DomainVerifyPayload{DomainID: domainID})
	if err != nil {
		return err
	}
	return e.enqueue(ctx, task,
		asynq.Queue(queue.QueueDefault),
		asynq.MaxRetry(e.verifyRetries),
		asynq.ProcessIn(firstVerifyDelay),
		asynq.TaskID(fmt.Sprintf("%s:%d", TypeDomainVerify, domainID)),
	)
}

func (e *Enqueuer) NotifyInvitation(ctx context.Context, invitationID int64) error {
	task, err := NewInvitationEmailTask(InvitationEmailPayload{InvitationID: invitationID})
	if err != nil {
		return err
	}
	return e.enqueue(ctx, task,
		asynq.Queue(queue.QueueCritical),
		asynq.MaxRetry(invitationRetries),
	)
}

func (e *Enqueuer) ScheduleRegistration(ctx context.Context, registrationID int64) error {
	task, err := NewCircleRegistrationTask(CircleRegistrationPayload{RegistrationID: registrationID})
	if err != nil {
		return err
	}
	return e.enqueue(ctx, task,
		asynq.Queue(queue.QueueDefault),
		asynq.MaxRetry(registrationRetries),
		asynq.TaskID(fmt.Sprintf("%s:%d", TypeCircleRegistration, registrationID)),
	)
}

func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		e.logger.Debug("task already queued", "type", task.Type())
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	e.logger.Debug("task enqueued", "type", task.Type(), "id", info.ID, "queue", info.Queue)
	return nil
}
