package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/api/middleware"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/domains"
	"github.com/hugh/funnel-builder/internal/funnels"
	"github.com/hugh/funnel-builder/internal/images"
	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/workspace"
)

const maxJSONBody = 1 << 20

type statusRule struct {
	err    error
	status int
}

// Order matters: the first match wins, and ErrEscalation must be checked
// before the generic forbidden sentinel it wraps.
var statusRules = []statusRule{
	{access.ErrNotFound, http.StatusNotFound},
	{auth.ErrUserNotFound, http.StatusNotFound},
	{workspace.ErrMemberNotFound, http.StatusNotFound},
	{workspace.ErrInvitationNotFound, http.StatusNotFound},
	{workspace.ErrUserNotFound, http.StatusNotFound},
	{funnels.ErrFunnelNotFound, http.StatusNotFound},
	{funnels.ErrPageNotFound, http.StatusNotFound},
	{domains.ErrDomainNotFound, http.StatusNotFound},
	{images.ErrImageNotFound, http.StatusNotFound},
	{integrations.ErrNotConnected, http.StatusNotFound},

	{workspace.ErrEscalation, http.StatusForbidden},
	{access.ErrForbidden, http.StatusForbidden},
	{allocation.ErrLimitReached, http.StatusForbidden},
	{workspace.ErrOwnerImmutable, http.StatusForbidden},
	{workspace.ErrOwnerCannotLeave, http.StatusForbidden},
	{workspace.ErrInvitationEmail, http.StatusForbidden},

	{workspace.ErrInvalidRole, http.StatusBadRequest},
	{workspace.ErrInvalidPermission, http.StatusBadRequest},
	{funnels.ErrInvalidSlug, http.StatusBadRequest},
	{funnels.ErrInvalidOrder, http.StatusBadRequest},
	{domains.ErrInvalidHostname, http.StatusBadRequest},
	{images.ErrUnsupportedType, http.StatusBadRequest},
	{images.ErrEmptyUpload, http.StatusBadRequest},
	{integrations.ErrInvalidToken, http.StatusBadRequest},
	{integrations.ErrInvalidCommunity, http.StatusBadRequest},
	{integrations.ErrFunnelMismatch, http.StatusBadRequest},
	{billing.ErrInvalidEvent, http.StatusBadRequest},
	{billing.ErrUnknownWorkspace, http.StatusBadRequest},
	{billing.ErrUnknownAddOn, http.StatusBadRequest},

	{integrations.ErrCircleRejected, http.StatusUnprocessableEntity},

	{auth.ErrUserExists, http.StatusConflict},
	{workspace.ErrAlreadyMember, http.StatusConflict},
	{workspace.ErrNotEmpty, http.StatusConflict},
	{funnels.ErrSlugTaken, http.StatusConflict},
	{domains.ErrHostnameTaken, http.StatusConflict},

	{workspace.ErrInvitationExpired, http.StatusGone},
	{images.ErrTooLarge, http.StatusRequestEntityTooLarge},

	{domains.ErrDomainsDisabled, http.StatusServiceUnavailable},
	{images.ErrStorageUnavailable, http.StatusServiceUnavailable},
}

// StatusFor maps a service error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	for _, rule := range statusRules {
		if errors.Is(err, rule.err) {
			return rule.status
		}
	}
	return http.StatusInternalServerError
}

// responder is embedded by every handler that talks to a service.
type responder struct {
	logger *slog.Logger
}

// fail writes err using the service's own message for known errors. Anything
// else is logged and reported as a generic 500.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		rs.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", middleware.GetUserID(r.Context()),
			"error", err,
		)
		writeJSON(w, status, dto.ErrorResponse{Error: "Internal server error"})
		return
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}

// decode reads a JSON body into v and runs its Validate method. It writes the
// 400 itself and reports whether the handler may continue.
func decode[T interface{ Validate() map[string]string }](w http.ResponseWriter, r *http.Request, v *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	if errs := (*v).Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter, writing a 400 when it is
// malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return id, true
}

func workspaceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return pathID(w, r, "workspaceID")
}

func currentUser(r *http.Request) int64 {
	return middleware.GetUserID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
