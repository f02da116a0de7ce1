package handlers_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/api"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/domains"
	"github.com/hugh/funnel-builder/internal/funnels"
	"github.com/hugh/funnel-builder/internal/images"
	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/internal/testutil"
	"github.com/hugh/funnel-builder/internal/workspace"
	"github.com/hugh/funnel-builder/pkg/crypto"
)

const testWebhookSecret = "whsec-test"

type fakeProvider struct {
	mu    sync.Mutex
	next  int
	hosts map[string]*domains.Hostname
}

func (f *fakeProvider) CreateHostname(_ context.Context, hostname string) (*domains.Hostname, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	h := &domains.Hostname{
		ID:        fmt.Sprintf("ch_%d", f.next),
		Hostname:  hostname,
		Status:    "pending",
		SSLStatus: "initializing",
	}
	f.hosts[h.ID] = h
	cp := *h
	return &cp, nil
}

func (f *fakeProvider) GetHostname(_ context.Context, id string) (*domains.Hostname, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[id]
	if !ok {
		return nil, domains.ErrHostnameGone
	}
	cp := *h
	return &cp, nil
}

func (f *fakeProvider) DeleteHostname(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hosts, id)
	return nil
}

func (f *fakeProvider) activate(hostname string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.hosts {
		if h.Hostname == hostname {
			h.Status = "active"
			h.SSLStatus = "active"
		}
	}
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Upload(_ context.Context, name string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memStore) URL(name string) string {
	return "https://cdn.example.com/" + name
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeCircle struct {
	checkErr error
}

func (f *fakeCircle) CheckCommunity(context.Context, string, int64) error { return f.checkErr }

func (f *fakeCircle) InviteMember(context.Context, string, int64, string, string) error { return nil }

// testAPI is the production router over a SQLite database, with the
// external services replaced by in-memory fakes.
type testAPI struct {
	*testutil.TestSetup
	router   http.Handler
	services api.Services
	provider *fakeProvider
	store    *memStore
	circle   *fakeCircle
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ts := testutil.NewTestContext(t)
	logger := testutil.Logger()
	m := metrics.New()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	enc, err := crypto.NewEncryptor(key)
	require.NoError(t, err)

	provider := &fakeProvider{hosts: map[string]*domains.Hostname{}}
	store := &memStore{objects: map[string][]byte{}}
	circle := &fakeCircle{}

	resolver := access.NewResolver(workspace.NewAccessStore(ts.DB), logger, m)
	bill := billing.NewService(ts.DB, resolver, logger, billing.Options{Metrics: m})
	integ := integrations.NewService(ts.DB, resolver, enc, circle, logger)
	bill.SetPurchaseRecorder(integ)

	services := api.Services{
		Auth:         auth.NewService(ts.DB, ts.JWTService),
		Workspaces:   workspace.NewService(ts.DB, resolver, bill, logger, workspace.Options{Metrics: m}),
		Funnels:      funnels.NewService(ts.DB, resolver, bill, m, logger),
		Domains:      domains.NewService(ts.DB, resolver, provider, logger, domains.Options{Metrics: m}),
		Images:       images.NewService(ts.DB, resolver, store, 1<<20, logger),
		Billing:      bill,
		Integrations: integ,
	}

	router := api.NewRouter(api.RouterConfig{
		DB:            ts.DB,
		Logger:        logger,
		JWTService:    ts.JWTService,
		Metrics:       m,
		Services:      services,
		WebhookSecret: testWebhookSecret,
	})

	return &testAPI{
		TestSetup: ts,
		router:    router,
		services:  services,
		provider:  provider,
		store:     store,
		circle:    circle,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, method, path, body, token))
	return rr
}

func (a *testAPI) wsPath(format string, args ...interface{}) string {
	return fmt.Sprintf("/api/v1/workspaces/%d", a.Workspace.ID) + fmt.Sprintf(format, args...)
}
