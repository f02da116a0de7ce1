package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/database/models"
)

// DefaultMaxBytes caps a single upload at 10 MiB.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrImageNotFound      = errors.New("image not found")
	ErrUnsupportedType    = errors.New("unsupported image type")
	ErrTooLarge           = errors.New("image exceeds the upload size limit")
	ErrEmptyUpload        = errors.New("image is empty")
	ErrStorageUnavailable = errors.New("image storage is not configured")

	// ErrScriptableSVG wraps ErrUnsupportedType.
	ErrScriptableSVG = fmt.Errorf("%w: SVG contains script or event handlers", ErrUnsupportedType)
)

// svgActiveContent matches, in lowercased SVG source, the elements,
// attributes and URL schemes a browser would execute, plus entity
// declarations.
var svgActiveContent = regexp.MustCompile(`<\s*(script|foreignobject|iframe|embed|object|handler)\b|\bon[a-z]+\s*=|(javascript|vbscript)\s*:|data\s*:\s*text/html|<!entity`)

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

type Service struct {
	db       *gorm.DB
	resolver *access.Resolver
	store    BlobStore
	maxBytes int64
	logger   *slog.Logger
}

// NewService creates the image service. A nil store disables uploads; a
// non-positive maxBytes falls back to DefaultMaxBytes.
func NewService(db *gorm.DB, resolver *access.Resolver, store BlobStore, maxBytes int64, logger *slog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		db:       db,
		resolver: resolver,
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

type UploadInput struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// Upload validates and stores an image for the workspace.
func (s *Service) Upload(ctx context.Context, userID, workspaceID int64, in UploadInput) (*models.Image, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageImages); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	contentType, err := DetectType(in.ContentType, data)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("workspaces/%d/%s%s", workspaceID, uuid.NewString(), extensions[contentType])
	if err := s.store.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, err
	}

	img := models.Image{
		WorkspaceID: workspaceID,
		BlobName:    name,
		URL:         s.store.URL(name),
		FileName:    path.Base(strings.ReplaceAll(in.FileName, "\\", "/")),
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedBy:  userID,
	}
	if err := s.db.WithContext(ctx).Create(&img).Error; err != nil {
		if derr := s.store.Delete(ctx, name); derr != nil {
			s.logger.Error("failed to clean up orphaned blob", "blob", name, "error", derr)
		}
		return nil, fmt.Errorf("saving image: %w", err)
	}

	s.logger.Info("uploaded image", "workspace_id", workspaceID, "image_id", img.ID, "size", img.Size, "content_type", contentType)
	return &img, nil
}

// DetectType checks the declared content type against the allowed set and,
// for raster formats, against the sniffed bytes.
func DetectType(declared string, data []byte) (string, error) {
	ct := declared
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		ct = parsed
	}
	ct = strings.ToLower(ct)

	sniffed := http.DetectContentType(data)
	if ct == "" || ct == "application/octet-stream" {
		ct = sniffed
	}
	if _, ok := extensions[ct]; !ok {
		return "", ErrUnsupportedType
	}
	if ct == "image/svg+xml" {
		lower := bytes.ToLower(data)
		if !bytes.Contains(lower[:min(len(lower), 1024)], []byte("<svg")) {
			return "", ErrUnsupportedType
		}
		if svgActiveContent.Match(lower) {
			return "", ErrScriptableSVG
		}
		return ct, nil
	}
	if sniffed != ct {
		return "", ErrUnsupportedType
	}
	return ct, nil
}

// List returns the workspace's images, newest first. Any member may list.
func (s *Service) List(ctx context.Context, userID, workspaceID int64) ([]models.Image, error) {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID); err != nil {
		return nil, err
	}

	var out []models.Image
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	return out, nil
}

// Delete removes the blob first, then the row.
func (s *Service) Delete(ctx context.Context, userID, workspaceID, imageID int64) error {
	if _, err := s.resolver.Resolve(ctx, userID, workspaceID, access.PermManageImages); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	var img models.Image
	if err := db.Where("id = ? AND workspace_id = ?", imageID, workspaceID).First(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImageNotFound
		}
		return fmt.Errorf("loading image: %w", err)
	}

	if s.store == nil {
		return ErrStorageUnavailable
	}
	if err := s.store.Delete(ctx, img.BlobName); err != nil {
		return err
	}
	if err := db.Delete(&img).Error; err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}

	s.logger.Info("deleted image", "workspace_id", workspaceID, "image_id", imageID)
	return nil
}
