package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// WorkspaceRef is the projection of a workspace the resolver needs.
type WorkspaceRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
}

// Membership is the projection of a WorkspaceMember row.
type Membership struct {
	Role        Role
	Permissions Permissions
}

// Store is the persistence collaborator behind the resolver. Both lookups
// return ErrRecordNotFound when the row is absent.
type Store interface {
	FindWorkspace(ctx context.Context, workspaceID int64) (*WorkspaceRef, error)
	FindMembership(ctx context.Context, userID, workspaceID int64) (*Membership, error)
}

// Outcome labels an access decision for metrics.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeForbidden Outcome = "forbidden"
	OutcomeNotFound  Outcome = "not_found"
)

// Recorder receives one call per access decision.
type Recorder interface {
	RecordAccess(outcome Outcome)
}

// Result is built fresh for every check and must not be cached: it has to
// reflect the membership state at the time of the request.
type Result struct {
	HasAccess bool         `json:"has_access"`
	Workspace WorkspaceRef `json:"workspace"`
	Grant     Grant        `json:"-"`
}

func (r *Result) UserRole() Role {
	return r.Grant.Role()
}

func (r *Result) UserPermissions() Permissions {
	return r.Grant.Permissions()
}

// IsOwner reports whether the caller owns the workspace.
func (r *Result) IsOwner() bool {
	_, ok := r.Grant.(OwnerGrant)
	return ok
}

// Can evaluates a single permission against the resolved grant.
func (r *Result) Can(p Permission) bool {
	return Allows(r.UserRole(), r.UserPermissions(), p)
}

// RequireOwner returns a *ForbiddenError unless the caller is the owner.
func (r *Result) RequireOwner() error {
	if r.IsOwner() {
		return nil
	}
	return &ForbiddenError{WorkspaceID: r.Workspace.ID, WorkspaceName: r.Workspace.Name}
}

// Resolver answers "may this user act on this workspace".
type Resolver struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
}

// NewResolver creates a resolver. recorder may be nil.
func NewResolver(store Store, logger *slog.Logger, recorder Recorder) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger, recorder: recorder}
}

// Resolve loads the caller's grant on the workspace and checks every required
// permission against it. It fails with ErrNotFound when the workspace is
// missing or the caller is neither owner nor member, and with a
// *ForbiddenError when a required permission is not held.
func (r *Resolver) Resolve(ctx context.Context, userID, workspaceID int64, required ...Permission) (*Result, error) {
	ws, grant, err := r.lookup(ctx, userID, workspaceID)
	if errors.Is(err, ErrRecordNotFound) {
		r.record(OutcomeNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving workspace access: %w", err)
	}

	result := &Result{HasAccess: true, Workspace: *ws, Grant: grant}

	if missing := missingPermissions(grant, required); len(missing) > 0 {
		r.record(OutcomeForbidden)
		r.logger.Debug("workspace access denied",
			"user_id", userID,
			"workspace_id", workspaceID,
			"role", grant.Role(),
			"missing", missing,
		)
		return nil, &ForbiddenError{
			WorkspaceID:   ws.ID,
			WorkspaceName: ws.Name,
			Missing:       missing,
		}
	}

	r.record(OutcomeAllowed)
	return result, nil
}

func (r *Resolver) lookup(ctx context.Context, userID, workspaceID int64) (*WorkspaceRef, Grant, error) {
	ws, err := r.store.FindWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	if ws.OwnerID == userID {
		return ws, OwnerGrant{}, nil
	}

	m, err := r.store.FindMembership(ctx, userID, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	if !m.Role.IsAssignable() {
		// Rows with OWNER or an unknown role break the membership invariant.
		r.logger.Warn("ignoring membership with unassignable role",
			"user_id", userID,
			"workspace_id", workspaceID,
			"role", m.Role,
		)
		return nil, nil, ErrRecordNotFound
	}
	return ws, NewMemberGrant(m.Role, m.Permissions), nil
}

func missingPermissions(grant Grant, required []Permission) []Permission {
	if len(required) == 0 {
		return nil
	}
	if _, ok := grant.(OwnerGrant); ok {
		return nil
	}
	var missing []Permission
	for _, p := range required {
		if !Allows(grant.Role(), grant.Permissions(), p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func (r *Resolver) record(o Outcome) {
	if r.recorder != nil {
		r.recorder.RecordAccess(o)
	}
}
