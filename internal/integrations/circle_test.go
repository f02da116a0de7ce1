package integrations_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/testutil"
)

func TestCircleClient_CheckCommunity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/communities/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":42,"name":"Members"}`))
	}))
	defer srv.Close()

	c := integrations.NewCircleClient(srv.URL, testutil.Logger())
	ctx := testutil.TestContext(t)

	assert.NoError(t, c.CheckCommunity(ctx, "good", 42))
	assert.ErrorIs(t, c.CheckCommunity(ctx, "bad", 42), integrations.ErrInvalidCircleToken)
	assert.ErrorIs(t, c.CheckCommunity(ctx, "good", 7), integrations.ErrCommunityNotFound)
}

func TestCircleClient_InviteMember(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/community_members", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		if got["email"] == "taken@example.com" {
			_, _ = w.Write([]byte(`{"success":false,"message":"already a member"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"invited"}`))
	}))
	defer srv.Close()

	c := integrations.NewCircleClient(srv.URL, testutil.Logger())
	ctx := testutil.TestContext(t)

	require.NoError(t, c.InviteMember(ctx, "tok", 42, "buyer@example.com", "Buyer"))
	assert.Equal(t, "buyer@example.com", got["email"])
	assert.Equal(t, "Buyer", got["name"])
	assert.EqualValues(t, 42, got["community_id"])

	err := c.InviteMember(ctx, "tok", 42, "taken@example.com", "")
	assert.ErrorIs(t, err, integrations.ErrCircleRejected)
	assert.Contains(t, err.Error(), "already a member")
}

func TestCircleClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			c := integrations.NewCircleClient(srv.URL, testutil.Logger())
			err := c.InviteMember(testutil.TestContext(t), "tok", 1, "a@example.com", "")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, integrations.ErrCircleRejected))
		})
	}
}
