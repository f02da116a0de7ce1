package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeDomainVerify       = "domain:verify"
	TypeDomainSweep        = "domain:sweep"
	TypeInvitationEmail    = "email:invitation"
	TypeCircleRegistration = "registration:circle"
)

// DomainVerifyPayload names the domain to re-check.
type DomainVerifyPayload struct {
	DomainID int64 `json:"domain_id"`
}

func NewDomainVerifyTask(payload DomainVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDomainVerify, data), nil
}

// DomainSweepPayload is empty: the sweep checks every pending domain.
type DomainSweepPayload struct{}

func NewDomainSweepTask() *asynq.Task {
	return asynq.NewTask(TypeDomainSweep, nil)
}

type InvitationEmailPayload struct {
	InvitationID int64 `json:"invitation_id"`
}

func NewInvitationEmailTask(payload InvitationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvitationEmail, data), nil
}

type CircleRegistrationPayload struct {
	RegistrationID int64 `json:"registration_id"`
}

func NewCircleRegistrationTask(payload CircleRegistrationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCircleRegistration, data), nil
}
