package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordAccess(access.OutcomeAllowed)
	m.RecordAccess(access.OutcomeAllowed)
	m.RecordAccess(access.OutcomeNotFound)
	m.RecordLimitReached(allocation.ResourceFunnels)
	m.RecordDomainCheck("active")
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordTask("domain:verify", nil)
	m.RecordTask("domain:verify", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LimitRejectionsTotal.WithLabelValues("funnels")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DomainChecksTotal.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("domain:verify", "error")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAccess(access.OutcomeForbidden)
		m.RecordLimitReached(allocation.ResourceAdmins)
		m.RecordDomainCheck("pending")
		m.RecordCacheLookup(true)
		m.RecordTask("x", nil)
		m.ObserveHTTP("GET", "/", "200", 0.1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/v1/workspaces", "200", 0.02)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `funnels_http_requests_total{method="GET",route="/api/v1/workspaces",status="200"} 1`)
}
