package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/domains"
)

type DomainHandler struct {
	responder
	domains *domains.Service
}

func NewDomainHandler(svc *domains.Service, logger *slog.Logger) *DomainHandler {
	return &DomainHandler{responder: responder{logger: logger}, domains: svc}
}

func domainPath(w http.ResponseWriter, r *http.Request) (wsID, domainID int64, ok bool) {
	if wsID, ok = workspaceID(w, r); !ok {
		return 0, 0, false
	}
	if domainID, ok = pathID(w, r, "domainID"); !ok {
		return 0, 0, false
	}
	return wsID, domainID, true
}

func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	list, err := h.domains.List(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Total: len(list)})
}

// Create registers the hostname and returns it pending; verification runs
// in the worker.
func (h *DomainHandler) Create(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req dto.CreateDomainRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.domains.Create(r.Context(), currentUser(r), wsID, req.Hostname)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DomainHandler) Connect(w http.ResponseWriter, r *http.Request) {
	wsID, domainID, ok := domainPath(w, r)
	if !ok {
		return
	}
	var req dto.ConnectDomainRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		d   *models.Domain
		err error
	)
	if req.FunnelID == nil {
		d, err = h.domains.Disconnect(r.Context(), currentUser(r), wsID, domainID)
	} else {
		d, err = h.domains.Connect(r.Context(), currentUser(r), wsID, domainID, req.FunnelID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DomainHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	wsID, domainID, ok := domainPath(w, r)
	if !ok {
		return
	}

	d, err := h.domains.Refresh(r.Context(), currentUser(r), wsID, domainID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DomainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wsID, domainID, ok := domainPath(w, r)
	if !ok {
		return
	}

	if err := h.domains.Delete(r.Context(), currentUser(r), wsID, domainID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
