package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/funnels"
)

type FunnelHandler struct {
	responder
	funnels *funnels.Service
}

func NewFunnelHandler(svc *funnels.Service, logger *slog.Logger) *FunnelHandler {
	return &FunnelHandler{responder: responder{logger: logger}, funnels: svc}
}

// funnelPath parses the workspace and funnel ids shared by every route
// below /funnels/{funnelID}.
func funnelPath(w http.ResponseWriter, r *http.Request) (wsID, funnelID int64, ok bool) {
	if wsID, ok = workspaceID(w, r); !ok {
		return 0, 0, false
	}
	if funnelID, ok = pathID(w, r, "funnelID"); !ok {
		return 0, 0, false
	}
	return wsID, funnelID, true
}

func (h *FunnelHandler) List(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	list, err := h.funnels.ListFunnels(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Total: len(list)})
}

func (h *FunnelHandler) Create(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	var req dto.CreateFunnelRequest
	if !decode(w, r, &req) {
		return
	}

	f, err := h.funnels.CreateFunnel(r.Context(), currentUser(r), wsID, funnels.CreateFunnelInput{
		Name: cleanName(req.Name),
		Slug: req.Slug,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FunnelHandler) Get(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}

	detail, err := h.funnels.GetFunnel(r.Context(), currentUser(r), wsID, funnelID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *FunnelHandler) Update(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}
	var req dto.UpdateFunnelRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := cleanName(*req.Name)
		req.Name = &name
	}

	f, err := h.funnels.UpdateFunnel(r.Context(), currentUser(r), wsID, funnelID, funnels.UpdateFunnelInput{
		Name:      req.Name,
		Slug:      req.Slug,
		Published: req.Published,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FunnelHandler) Publish(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}
	var req dto.PublishRequest
	if !decode(w, r, &req) {
		return
	}

	f, err := h.funnels.Publish(r.Context(), currentUser(r), wsID, funnelID, *req.Published)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FunnelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}

	if err := h.funnels.DeleteFunnel(r.Context(), currentUser(r), wsID, funnelID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FunnelHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}

	pages, err := h.funnels.ListPages(r.Context(), currentUser(r), wsID, funnelID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: pages, Total: len(pages)})
}

func (h *FunnelHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}
	var req dto.CreatePageRequest
	if !decode(w, r, &req) {
		return
	}

	page, err := h.funnels.CreatePage(r.Context(), currentUser(r), wsID, funnelID, funnels.CreatePageInput{
		Name:    cleanName(req.Name),
		Path:    req.Path,
		Content: req.Content,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

func (h *FunnelHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}
	pageID, ok := pathID(w, r, "pageID")
	if !ok {
		return
	}
	var req dto.UpdatePageRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := cleanName(*req.Name)
		req.Name = &name
	}

	page, err := h.funnels.UpdatePage(r.Context(), currentUser(r), wsID, funnelID, pageID, funnels.UpdatePageInput{
		Name:    req.Name,
		Path:    req.Path,
		Content: req.Content,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *FunnelHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}
	pageID, ok := pathID(w, r, "pageID")
	if !ok {
		return
	}

	if err := h.funnels.DeletePage(r.Context(), currentUser(r), wsID, funnelID, pageID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FunnelHandler) ReorderPages(w http.ResponseWriter, r *http.Request) {
	wsID, funnelID, ok := funnelPath(w, r)
	if !ok {
		return
	}
	var req dto.ReorderPagesRequest
	if !decode(w, r, &req) {
		return
	}

	pages, err := h.funnels.ReorderPages(r.Context(), currentUser(r), wsID, funnelID, req.PageIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: pages, Total: len(pages)})
}
