package access

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned both when the workspace does not exist and when
	// the caller has no relationship with it. The two cases share one message
	// so callers cannot probe for workspace existence.
	ErrNotFound = errors.New("workspace not found or you don't have access to it")

	// ErrForbidden is the sentinel every *ForbiddenError unwraps to.
	ErrForbidden = errors.New("insufficient workspace permissions")

	// ErrRecordNotFound is what a Store returns for an absent row.
	ErrRecordNotFound = errors.New("record not found")
)

// ForbiddenError reports that the caller can see the workspace but their
// role and permissions do not cover the requested action.
type ForbiddenError struct {
	WorkspaceID   int64
	WorkspaceName string
	Missing       []Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf(
		"you don't have permission to perform this action in workspace %q, please contact the workspace owner or an admin",
		e.WorkspaceName,
	)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}
