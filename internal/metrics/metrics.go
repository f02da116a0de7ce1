package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
)

// Metrics holds every collector the service exports. All Record methods are
// safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AccessDecisionsTotal *prometheus.CounterVec
	LimitRejectionsTotal *prometheus.CounterVec

	DomainChecksTotal *prometheus.CounterVec
	CacheLookupsTotal *prometheus.CounterVec
	TasksTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnels_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnels_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnels_workspace_access_decisions_total",
				Help: "Workspace access checks by outcome",
			},
			[]string{"outcome"},
		),
		LimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnels_allocation_limit_rejections_total",
				Help: "Creations rejected because the workspace reached its allocation",
			},
			[]string{"resource"},
		),
		DomainChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnels_domain_checks_total",
				Help: "Custom hostname status checks by resulting status",
			},
			[]string{"status"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnels_cache_lookups_total",
				Help: "Entitlement cache lookups by result",
			},
			[]string{"result"},
		),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnels_tasks_total",
				Help: "Background tasks processed by type and result",
			},
			[]string{"type", "result"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessDecisionsTotal,
		m.LimitRejectionsTotal,
		m.DomainChecksTotal,
		m.CacheLookupsTotal,
		m.TasksTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAccess implements access.Recorder.
func (m *Metrics) RecordAccess(outcome access.Outcome) {
	if m == nil {
		return
	}
	m.AccessDecisionsTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) RecordLimitReached(kind allocation.ResourceKind) {
	if m == nil {
		return
	}
	m.LimitRejectionsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RecordDomainCheck(status string) {
	if m == nil {
		return
	}
	m.DomainChecksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTask(taskType string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.TasksTotal.WithLabelValues(taskType, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

var _ access.Recorder = (*Metrics)(nil)
