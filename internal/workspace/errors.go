package workspace

import (
	"errors"
	"fmt"

	"github.com/hugh/funnel-builder/internal/access"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrNotEmpty           = errors.New("workspace still has domains or images, remove them first")
	ErrInvalidRole        = errors.New("role must be ADMIN, EDITOR or VIEWER")
	ErrInvalidPermission  = errors.New("unknown permission")
	ErrAlreadyMember      = errors.New("user is already a member of this workspace")
	ErrMemberNotFound     = errors.New("member not found")
	ErrOwnerImmutable     = errors.New("the workspace owner cannot be modified or removed")
	ErrOwnerCannotLeave   = errors.New("the owner cannot leave their own workspace")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrInvitationEmail    = errors.New("invitation was sent to a different email address")

	// ErrEscalation matches access.ErrForbidden under errors.Is.
	ErrEscalation = fmt.Errorf("%w: you cannot grant a role or permission you do not hold", access.ErrForbidden)
)
