package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/api/validation"
	"github.com/hugh/funnel-builder/internal/workspace"
)

type WorkspaceHandler struct {
	responder
	workspaces *workspace.Service
}

func NewWorkspaceHandler(workspaces *workspace.Service, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{responder: responder{logger: logger}, workspaces: workspaces}
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.workspaces.List(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Total: len(list)})
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.WorkspaceRequest
	if !decode(w, r, &req) {
		return
	}

	ws, err := h.workspaces.Create(r.Context(), currentUser(r), cleanName(req.Name))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	ws, err := h.workspaces.Get(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req dto.WorkspaceRequest
	if !decode(w, r, &req) {
		return
	}

	ws, err := h.workspaces.Update(r.Context(), currentUser(r), wsID, cleanName(req.Name))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	if err := h.workspaces.Delete(r.Context(), currentUser(r), wsID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspaceHandler) Usage(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	usage, err := h.workspaces.Usage(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	members, err := h.workspaces.ListMembers(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: members, Total: len(members)})
}

func (h *WorkspaceHandler) Invite(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req dto.InviteRequest
	if !decode(w, r, &req) {
		return
	}

	inv, err := h.workspaces.Invite(r.Context(), currentUser(r), wsID, workspace.InviteInput{
		Email:       req.Email,
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *WorkspaceHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid token"})
		return
	}

	member, err := h.workspaces.AcceptInvitation(r.Context(), currentUser(r), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *WorkspaceHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req dto.UpdateMemberRequest
	if !decode(w, r, &req) {
		return
	}

	member, err := h.workspaces.UpdateMember(r.Context(), currentUser(r), wsID, memberID, workspace.UpdateMemberInput{
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// RemoveMember doubles as "leave" when the caller removes themselves.
func (h *WorkspaceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	userID := currentUser(r)
	var err error
	if memberID == userID {
		err = h.workspaces.Leave(r.Context(), userID, wsID)
	} else {
		err = h.workspaces.RemoveMember(r.Context(), userID, wsID, memberID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cleanName(name string) string {
	return validation.SanitizeString(strings.TrimSpace(name))
}
