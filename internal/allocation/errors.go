package allocation

import (
	"errors"
	"fmt"
)

// ErrLimitReached is the sentinel every *LimitError unwraps to.
var ErrLimitReached = errors.New("allocation limit reached")

// LimitError carries the summary that rejected a creation so the message
// can name the ceiling.
type LimitError struct {
	Summary Summary
}

func (e *LimitError) Error() string {
	s := e.Summary
	switch s.Resource {
	case ResourceFunnels:
		return fmt.Sprintf("You've reached the maximum of %d funnels for this workspace", s.TotalAllocation)
	case ResourcePagesPerFunnel:
		return fmt.Sprintf("You've reached the maximum of %d pages for this funnel", s.TotalAllocation)
	case ResourceAdmins:
		return fmt.Sprintf("You've reached the maximum of %d admins for this workspace", s.TotalAllocation)
	case ResourceWorkspaces:
		return fmt.Sprintf("You've reached the maximum of %d workspaces for your plan", s.TotalAllocation)
	default:
		return fmt.Sprintf("You've reached the maximum of %d %s", s.TotalAllocation, s.Resource)
	}
}

func (e *LimitError) Unwrap() error {
	return ErrLimitReached
}

// Enforce is the error-returning form of CanCreate for service code.
func Enforce(kind ResourceKind, currentCount int, tier PlanTier, addOns []AddOn) error {
	s := Summarize(kind, currentCount, tier, addOns)
	if s.CanCreateMore {
		return nil
	}
	return &LimitError{Summary: s}
}
