package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/testutil"
)

func (a *testAPI) createDomain(t *testing.T, hostname string) models.Domain {
	t.Helper()
	rr := a.do(t, "POST", a.wsPath("/domains"), map[string]string{"hostname": hostname}, a.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var d models.Domain
	testutil.ParseJSONResponse(t, rr, &d)
	return d
}

func TestDomainHandler_Create(t *testing.T) {
	a := newTestAPI(t)

	d := a.createDomain(t, "  Shop.Example.COM. ")
	assert.Equal(t, "shop.example.com", d.Hostname)
	assert.Equal(t, models.DomainPending, d.Status)
	assert.Equal(t, "initializing", d.SSLStatus)

	tests := []struct {
		name       string
		hostname   string
		wantStatus int
	}{
		{"duplicate", "shop.example.com", http.StatusConflict},
		{"missing", "", http.StatusBadRequest},
		{"invalid", "not a host", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, "POST", a.wsPath("/domains"), map[string]string{"hostname": tt.hostname}, a.Token)
			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}

	t.Run("hostname taken by another workspace", func(t *testing.T) {
		other, otherToken := a.NewUser(t)
		ws := testutil.CreateTestWorkspace(t, a.DB, other, allocation.PlanFree)
		rr := a.do(t, "POST", fmt.Sprintf("/api/v1/workspaces/%d/domains", ws.ID), map[string]string{"hostname": "shop.example.com"}, otherToken)
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	t.Run("viewer cannot create", func(t *testing.T) {
		viewer, viewerToken := a.NewUser(t)
		testutil.AddTestMember(t, a.DB, a.Workspace, viewer, access.RoleViewer, access.PermViewFunnels)
		rr := a.do(t, "POST", a.wsPath("/domains"), map[string]string{"hostname": "viewer.example.com"}, viewerToken)
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		rr = a.do(t, "GET", a.wsPath("/domains"), nil, viewerToken)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

func TestDomainHandler_ConnectAndDisconnect(t *testing.T) {
	a := newTestAPI(t)
	d := a.createDomain(t, "go.example.com")
	funnel := testutil.CreateTestFunnel(t, a.DB, a.Workspace.ID, "Landing")

	rr := a.do(t, "PUT", a.wsPath("/domains/%d/funnel", d.ID), map[string]int64{"funnel_id": funnel.ID}, a.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var got models.Domain
	testutil.ParseJSONResponse(t, rr, &got)
	require.NotNil(t, got.FunnelID)
	assert.Equal(t, funnel.ID, *got.FunnelID)

	t.Run("funnel of another workspace", func(t *testing.T) {
		other, _ := a.NewUser(t)
		ws := testutil.CreateTestWorkspace(t, a.DB, other, allocation.PlanFree)
		foreign := testutil.CreateTestFunnel(t, a.DB, ws.ID, "Foreign")

		rr := a.do(t, "PUT", a.wsPath("/domains/%d/funnel", d.ID), map[string]int64{"funnel_id": foreign.ID}, a.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("invalid funnel id", func(t *testing.T) {
		rr := a.do(t, "PUT", a.wsPath("/domains/%d/funnel", d.ID), map[string]int64{"funnel_id": -1}, a.Token)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	rr = a.do(t, "PUT", a.wsPath("/domains/%d/funnel", d.ID), map[string]interface{}{"funnel_id": nil}, a.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	got = models.Domain{}
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Nil(t, got.FunnelID)

	var stored models.Domain
	require.NoError(t, a.DB.First(&stored, d.ID).Error)
	assert.Nil(t, stored.FunnelID)
}

func TestDomainHandler_Refresh(t *testing.T) {
	a := newTestAPI(t)
	d := a.createDomain(t, "live.example.com")

	rr := a.do(t, "POST", a.wsPath("/domains/%d/refresh", d.ID), nil, a.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var got models.Domain
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Equal(t, models.DomainPending, got.Status)
	assert.Equal(t, 0, got.Checks)

	a.provider.activate("live.example.com")

	rr = a.do(t, "POST", a.wsPath("/domains/%d/refresh", d.ID), nil, a.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Equal(t, models.DomainActive, got.Status)
	assert.Equal(t, "active", got.SSLStatus)

	testutil.AssertStatus(t, a.do(t, "POST", a.wsPath("/domains/99999/refresh"), nil, a.Token), http.StatusNotFound)
}

func TestDomainHandler_Delete(t *testing.T) {
	a := newTestAPI(t)
	d := a.createDomain(t, "gone.example.com")

	testutil.AssertStatus(t, a.do(t, "DELETE", a.wsPath("/domains/%d", d.ID), nil, a.Token), http.StatusNoContent)
	testutil.AssertStatus(t, a.do(t, "DELETE", a.wsPath("/domains/%d", d.ID), nil, a.Token), http.StatusNotFound)

	rr := a.do(t, "GET", a.wsPath("/domains"), nil, a.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), `"total":0`)

	// The hostname is free again.
	a.createDomain(t, "gone.example.com")
}
