package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/images"
)

const (
	multipartOverhead = 1 << 20
	multipartMemory   = 1 << 20
)

type ImageHandler struct {
	responder
	images *images.Service
}

func NewImageHandler(svc *images.Service, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{responder: responder{logger: logger}, images: svc}
}

func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	list, err := h.images.List(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Total: len(list)})
}

// Upload expects a multipart form with the image in the "file" field.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.images.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, images.ErrTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid multipart form"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"file": "File is required"},
		})
		return
	}
	defer file.Close()

	img, err := h.images.Upload(r.Context(), currentUser(r), wsID, images.UploadInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	imageID, ok := pathID(w, r, "imageID")
	if !ok {
		return
	}

	if err := h.images.Delete(r.Context(), currentUser(r), wsID, imageID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
