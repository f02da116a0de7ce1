package handlers_test

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/testutil"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func (a *testAPI) upload(t *testing.T, field, fileName, contentType string, data []byte, token string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", a.wsPath("/images"), &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func TestImageHandler_Upload(t *testing.T) {
	a := newTestAPI(t)

	rr := a.upload(t, "file", "hero.png", "image/png", pngBytes, a.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var img models.Image
	testutil.ParseJSONResponse(t, rr, &img)
	assert.Equal(t, "hero.png", img.FileName)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, int64(len(pngBytes)), img.Size)
	assert.Equal(t, a.Owner.ID, img.UploadedBy)
	assert.Contains(t, img.URL, "https://cdn.example.com/workspaces/")
	assert.Equal(t, 1, a.store.len())

	tests := []struct {
		name        string
		field       string
		contentType string
		data        []byte
		wantStatus  int
	}{
		{"missing file field", "upload", "image/png", pngBytes, http.StatusBadRequest},
		{"unsupported type", "file", "application/pdf", []byte("%PDF-1.4"), http.StatusBadRequest},
		{"declared type does not match", "file", "image/jpeg", pngBytes, http.StatusBadRequest},
		{"empty", "file", "image/png", nil, http.StatusBadRequest},
		{"too large", "file", "image/png", append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 1<<20)...), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.upload(t, tt.field, "x.bin", tt.contentType, tt.data, a.Token)
			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}
	assert.Equal(t, 1, a.store.len())

	t.Run("not a multipart body", func(t *testing.T) {
		rr := a.do(t, "POST", a.wsPath("/images"), map[string]string{"file": "x"}, a.Token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestImageHandler_Permissions(t *testing.T) {
	a := newTestAPI(t)
	viewer, viewerToken := a.NewUser(t)
	testutil.AddTestMember(t, a.DB, a.Workspace, viewer, access.RoleViewer)

	rr := a.upload(t, "file", "hero.png", "image/png", pngBytes, viewerToken)
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	// Listing needs membership only.
	testutil.AssertStatus(t, a.do(t, "GET", a.wsPath("/images"), nil, viewerToken), http.StatusOK)

	_, strangerToken := a.NewUser(t)
	testutil.AssertStatus(t, a.do(t, "GET", a.wsPath("/images"), nil, strangerToken), http.StatusNotFound)
}

func TestImageHandler_ListAndDelete(t *testing.T) {
	a := newTestAPI(t)

	var ids []int64
	for _, name := range []string{"a.png", "b.png"} {
		rr := a.upload(t, "file", name, "image/png", pngBytes, a.Token)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		var img models.Image
		testutil.ParseJSONResponse(t, rr, &img)
		ids = append(ids, img.ID)
	}

	rr := a.do(t, "GET", a.wsPath("/images"), nil, a.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var list struct {
		Data  []models.Image `json:"data"`
		Total int            `json:"total"`
	}
	testutil.ParseJSONResponse(t, rr, &list)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, ids[1], list.Data[0].ID, "newest first")
	assert.NotContains(t, rr.Body.String(), "blob_name")

	testutil.AssertStatus(t, a.do(t, "DELETE", a.wsPath("/images/%d", ids[0]), nil, a.Token), http.StatusNoContent)
	testutil.AssertStatus(t, a.do(t, "DELETE", a.wsPath("/images/%d", ids[0]), nil, a.Token), http.StatusNotFound)
	assert.Equal(t, 1, a.store.len())
}
