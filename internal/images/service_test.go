package images_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/images"
	"github.com/hugh/funnel-builder/internal/testutil"
	"github.com/hugh/funnel-builder/internal/workspace"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	gifBytes = append([]byte("GIF89a"), bytes.Repeat([]byte{1}, 64)...)
	svgBytes = []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`)
)

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Upload(_ context.Context, name string, body io.Reader, size int64, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	m.types[name] = contentType
	return nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memStore) URL(name string) string {
	return "https://cdn.test/" + name
}

func setup(t *testing.T, store images.BlobStore, maxBytes int64) (*testutil.TestSetup, *images.Service) {
	t.Helper()
	ts := testutil.NewTestContext(t)
	resolver := access.NewResolver(workspace.NewAccessStore(ts.DB), testutil.Logger(), nil)
	return ts, images.NewService(ts.DB, resolver, store, maxBytes, testutil.Logger())
}

func TestUpload_StoresBlobAndRow(t *testing.T) {
	store := newMemStore()
	ts, svc := setup(t, store, 0)
	ctx := testutil.TestContext(t)

	img, err := svc.Upload(ctx, ts.Owner.ID, ts.Workspace.ID, images.UploadInput{
		FileName:    `C:\pictures\hero.png`,
		ContentType: "image/png",
		Body:        bytes.NewReader(pngBytes),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(img.BlobName, "workspaces/"))
	assert.True(t, strings.HasSuffix(img.BlobName, ".png"))
	assert.Equal(t, "https://cdn.test/"+img.BlobName, img.URL)
	assert.Equal(t, "hero.png", img.FileName)
	assert.Equal(t, int64(len(pngBytes)), img.Size)
	assert.Equal(t, ts.Owner.ID, img.UploadedBy)

	assert.Equal(t, pngBytes, store.objects[img.BlobName])
	assert.Equal(t, "image/png", store.types[img.BlobName])

	var n int64
	require.NoError(t, ts.DB.Model(&models.Image{}).Where("workspace_id = ?", ts.Workspace.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestUpload_BlobNameIsWorkspaceScoped(t *testing.T) {
	ts, svc := setup(t, newMemStore(), 0)
	ctx := testutil.TestContext(t)

	img, err := svc.Upload(ctx, ts.Owner.ID, ts.Workspace.ID, images.UploadInput{
		ContentType: "image/gif",
		Body:        bytes.NewReader(gifBytes),
	})
	require.NoError(t, err)

	parts := strings.Split(img.BlobName, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "workspaces", parts[0])
	assert.Equal(t, strconv.FormatInt(ts.Workspace.ID, 10), parts[1])
	assert.True(t, strings.HasSuffix(parts[2], ".gif"))
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantErr     error
	}{
		{"empty", "image/png", nil, images.ErrEmptyUpload},
		{"too large", "image/png", append(pngBytes, bytes.Repeat([]byte{0}, 128)...), images.ErrTooLarge},
		{"pdf", "application/pdf", []byte("%PDF-1.4 hello"), images.ErrUnsupportedType},
		{"declared png but gif bytes", "image/png", gifBytes, images.ErrUnsupportedType},
		{"svg without svg tag", "image/svg+xml", []byte("<html></html>"), images.ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			ts, svc := setup(t, store, 100)

			_, err := svc.Upload(testutil.TestContext(t), ts.Owner.ID, ts.Workspace.ID, images.UploadInput{
				ContentType: tt.contentType,
				Body:        bytes.NewReader(tt.body),
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.objects)
		})
	}
}

func TestDetectType_ScriptableSVG(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"script element", `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`},
		{"uppercase script", `<svg><SCRIPT>alert(1)</SCRIPT></svg>`},
		{"onload handler", `<svg onload="alert(1)"></svg>`},
		{"handler on child", `<svg><rect width="1" onmouseover = "x()"/></svg>`},
		{"javascript href", `<svg><a href="javascript:alert(1)"><text>x</text></a></svg>`},
		{"foreign object", `<svg><foreignObject><body/></foreignObject></svg>`},
		{"entity declaration", `<!DOCTYPE svg [<!ENTITY x SYSTEM "file:///etc/passwd">]><svg>&x;</svg>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := images.DetectType("image/svg+xml", []byte(tt.body))
			assert.ErrorIs(t, err, images.ErrScriptableSVG)
			assert.ErrorIs(t, err, images.ErrUnsupportedType)
		})
	}

	ct, err := images.DetectType("image/svg+xml", []byte(`<svg xmlns="http://www.w3.org/2000/svg" font-family="Arial"><text>Sale is on = now</text></svg>`))
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", ct)
}

func TestUpload_ScriptableSVGNotStored(t *testing.T) {
	store := newMemStore()
	ts, svc := setup(t, store, 0)

	_, err := svc.Upload(testutil.TestContext(t), ts.Owner.ID, ts.Workspace.ID, images.UploadInput{
		ContentType: "image/svg+xml",
		Body:        bytes.NewReader([]byte(`<svg onload="fetch('/steal')"></svg>`)),
	})
	assert.ErrorIs(t, err, images.ErrScriptableSVG)
	assert.Empty(t, store.objects)
}

func TestDetectType(t *testing.T) {
	ct, err := images.DetectType("image/svg+xml; charset=utf-8", svgBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", ct)

	ct, err = images.DetectType("", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	ct, err = images.DetectType("application/octet-stream", gifBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", ct)
}

func TestUpload_RequiresManageImages(t *testing.T) {
	ts, svc := setup(t, newMemStore(), 0)
	ctx := testutil.TestContext(t)

	editor, _ := ts.NewUser(t)
	testutil.AddTestMember(t, ts.DB, ts.Workspace, editor, access.RoleEditor, access.PermEditFunnels)

	_, err := svc.Upload(ctx, editor.ID, ts.Workspace.ID, images.UploadInput{
		ContentType: "image/png",
		Body:        bytes.NewReader(pngBytes),
	})
	assert.ErrorIs(t, err, access.ErrForbidden)

	designer, _ := ts.NewUser(t)
	testutil.AddTestMember(t, ts.DB, ts.Workspace, designer, access.RoleEditor, access.PermManageImages)

	_, err = svc.Upload(ctx, designer.ID, ts.Workspace.ID, images.UploadInput{
		ContentType: "image/png",
		Body:        bytes.NewReader(pngBytes),
	})
	assert.NoError(t, err)

	// Listing only needs workspace access.
	list, err := svc.List(ctx, editor.ID, ts.Workspace.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpload_StorageDisabled(t *testing.T) {
	ts, svc := setup(t, nil, 0)

	_, err := svc.Upload(testutil.TestContext(t), ts.Owner.ID, ts.Workspace.ID, images.UploadInput{
		ContentType: "image/png",
		Body:        bytes.NewReader(pngBytes),
	})
	assert.ErrorIs(t, err, images.ErrStorageUnavailable)
}

func TestUpload_StoreFailureLeavesNoRow(t *testing.T) {
	store := newMemStore()
	store.uploadErr = errors.New("boom")
	ts, svc := setup(t, store, 0)

	_, err := svc.Upload(testutil.TestContext(t), ts.Owner.ID, ts.Workspace.ID, images.UploadInput{
		ContentType: "image/png",
		Body:        bytes.NewReader(pngBytes),
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, ts.DB.Model(&models.Image{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestListAndDelete(t *testing.T) {
	store := newMemStore()
	ts, svc := setup(t, store, 0)
	ctx := testutil.TestContext(t)

	first, err := svc.Upload(ctx, ts.Owner.ID, ts.Workspace.ID, images.UploadInput{ContentType: "image/png", Body: bytes.NewReader(pngBytes)})
	require.NoError(t, err)
	second, err := svc.Upload(ctx, ts.Owner.ID, ts.Workspace.ID, images.UploadInput{ContentType: "image/gif", Body: bytes.NewReader(gifBytes)})
	require.NoError(t, err)

	list, err := svc.List(ctx, ts.Owner.ID, ts.Workspace.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, svc.Delete(ctx, ts.Owner.ID, ts.Workspace.ID, first.ID))
	assert.NotContains(t, store.objects, first.BlobName)
	assert.Contains(t, store.objects, second.BlobName)

	err = svc.Delete(ctx, ts.Owner.ID, ts.Workspace.ID, first.ID)
	assert.ErrorIs(t, err, images.ErrImageNotFound)

	// Another workspace cannot reach this image.
	other := testutil.CreateTestWorkspace(t, ts.DB, ts.Owner, allocation.PlanFree)
	err = svc.Delete(ctx, ts.Owner.ID, other.ID, second.ID)
	assert.ErrorIs(t, err, images.ErrImageNotFound)
}
