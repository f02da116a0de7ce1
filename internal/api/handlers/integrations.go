package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/integrations"
)

const (
	defaultRegistrationLimit = 50
	maxRegistrationLimit     = 100
)

type IntegrationHandler struct {
	responder
	integrations *integrations.Service
}

func NewIntegrationHandler(svc *integrations.Service, logger *slog.Logger) *IntegrationHandler {
	return &IntegrationHandler{responder: responder{logger: logger}, integrations: svc}
}

func (h *IntegrationHandler) CircleStatus(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	status, err := h.integrations.Status(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *IntegrationHandler) SaveCircle(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req dto.SaveCircleRequest
	if !decode(w, r, &req) {
		return
	}

	status, err := h.integrations.SaveCircle(r.Context(), currentUser(r), wsID, integrations.CircleInput{
		APIToken:    strings.TrimSpace(req.APIToken),
		CommunityID: req.CommunityID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *IntegrationHandler) RemoveCircle(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	if err := h.integrations.Remove(r.Context(), currentUser(r), wsID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IntegrationHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	limit := dto.ParseLimit(r.URL.Query().Get("limit"), defaultRegistrationLimit, maxRegistrationLimit)

	list, err := h.integrations.ListRegistrations(r.Context(), currentUser(r), wsID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Total: len(list)})
}
