package workspace_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/testutil"
	"github.com/hugh/funnel-builder/internal/workspace"
)

type fakeNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeNotifier) NotifyInvitation(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

type fixture struct {
	*testutil.TestSetup
	svc      *workspace.Service
	notifier *fakeNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()

	ts := testutil.NewTestContext(t)
	resolver := access.NewResolver(workspace.NewAccessStore(ts.DB), testutil.Logger(), nil)
	bill := billing.NewService(ts.DB, resolver, testutil.Logger(), billing.Options{})
	notifier := &fakeNotifier{}
	svc := workspace.NewService(ts.DB, resolver, bill, testutil.Logger(), workspace.Options{Notifier: notifier})

	return &fixture{TestSetup: ts, svc: svc, notifier: notifier}
}

func TestAccessStore(t *testing.T) {
	ts := testutil.NewTestContext(t)
	store := workspace.NewAccessStore(ts.DB)
	ctx := context.Background()

	ref, err := store.FindWorkspace(ctx, ts.Workspace.ID)
	require.NoError(t, err)
	assert.Equal(t, ts.Owner.ID, ref.OwnerID)
	assert.Equal(t, ts.Workspace.Name, ref.Name)

	_, err = store.FindWorkspace(ctx, 9999)
	assert.ErrorIs(t, err, access.ErrRecordNotFound)

	_, err = store.FindMembership(ctx, ts.Owner.ID, ts.Workspace.ID)
	assert.ErrorIs(t, err, access.ErrRecordNotFound, "owners have no membership row")

	editor := testutil.CreateTestUser(t, ts.DB)
	testutil.AddTestMember(t, ts.DB, ts.Workspace, editor, access.RoleEditor, access.PermViewFunnels)

	m, err := store.FindMembership(ctx, editor.ID, ts.Workspace.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, m.Role)
	assert.Equal(t, access.Permissions{access.PermViewFunnels}, m.Permissions)
}

func TestCreate_WorkspacesPerUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// FREE allows a single owned workspace, which the fixture already has.
	_, err := f.svc.Create(ctx, f.Owner.ID, "Second")
	require.ErrorIs(t, err, allocation.ErrLimitReached)
	assert.Equal(t, "You've reached the maximum of 1 workspaces for your plan", err.Error())

	f.SetPlan(t, allocation.PlanAgency)
	for i := 0; i < 2; i++ {
		ws, err := f.svc.Create(ctx, f.Owner.ID, "Client")
		require.NoError(t, err)
		assert.Equal(t, allocation.PlanFree, ws.Plan)
		assert.Equal(t, f.Owner.ID, ws.OwnerID)
	}

	_, err = f.svc.Create(ctx, f.Owner.ID, "One too many")
	assert.ErrorIs(t, err, allocation.ErrLimitReached)

	fresh, _ := f.NewUser(t)
	ws, err := f.svc.Create(ctx, fresh.ID, "First")
	require.NoError(t, err)
	assert.NotEmpty(t, ws.Slug)

	_, err = f.svc.Create(ctx, 9999, "Ghost")
	assert.ErrorIs(t, err, workspace.ErrUserNotFound)
}

func TestList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other := testutil.CreateTestUser(t, f.DB)
	otherWS := testutil.CreateTestWorkspace(t, f.DB, other, allocation.PlanFree)
	testutil.AddTestMember(t, f.DB, otherWS, f.Owner, access.RoleViewer, access.PermViewFunnels)
	testutil.CreateTestWorkspace(t, f.DB, other, allocation.PlanFree)

	list, err := f.svc.List(ctx, f.Owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, f.Workspace.ID, list[0].ID)
	assert.Equal(t, access.RoleOwner, list[0].Role)
	assert.Equal(t, otherWS.ID, list[1].ID)
	assert.Equal(t, access.RoleViewer, list[1].Role)
	assert.Equal(t, access.Permissions{access.PermViewFunnels}, list[1].Permissions)
}

func TestGetAndUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	editor, _ := f.NewUser(t)
	m := testutil.AddTestMember(t, f.DB, f.Workspace, editor, access.RoleEditor)
	stranger, _ := f.NewUser(t)

	got, err := f.svc.Get(ctx, editor.ID, f.Workspace.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, got.Role)

	_, err = f.svc.Get(ctx, stranger.ID, f.Workspace.ID)
	assert.ErrorIs(t, err, access.ErrNotFound)

	_, err = f.svc.Update(ctx, editor.ID, f.Workspace.ID, "Renamed")
	var fe *access.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []access.Permission{access.PermEditSettings}, fe.Missing)

	m.Permissions = access.Permissions{access.PermEditSettings}
	require.NoError(t, f.DB.Model(m).Select("permissions").Updates(m).Error)
	ws, err := f.svc.Update(ctx, editor.ID, f.Workspace.ID, "  Renamed  ")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", ws.Name)
	assert.Equal(t, f.Workspace.Slug, ws.Slug)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin, _ := f.NewUser(t)
	testutil.AddTestMember(t, f.DB, f.Workspace, admin, access.RoleAdmin)
	stranger, _ := f.NewUser(t)

	funnel := testutil.CreateTestFunnel(t, f.DB, f.Workspace.ID, "Launch")
	testutil.CreateTestPage(t, f.DB, funnel.ID, 0)
	domain := &models.Domain{WorkspaceID: f.Workspace.ID, Hostname: "shop.example.com"}
	require.NoError(t, f.DB.Create(domain).Error)

	err := f.svc.Delete(ctx, stranger.ID, f.Workspace.ID)
	assert.ErrorIs(t, err, access.ErrNotFound)

	err = f.svc.Delete(ctx, admin.ID, f.Workspace.ID)
	assert.ErrorIs(t, err, access.ErrForbidden, "admins cannot delete the workspace")

	err = f.svc.Delete(ctx, f.Owner.ID, f.Workspace.ID)
	assert.ErrorIs(t, err, workspace.ErrNotEmpty)

	require.NoError(t, f.DB.Delete(domain).Error)
	require.NoError(t, f.svc.Delete(ctx, f.Owner.ID, f.Workspace.ID))

	for _, m := range []any{&models.Workspace{}, &models.Funnel{}, &models.Page{}, &models.WorkspaceMember{}} {
		var n int64
		require.NoError(t, f.DB.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T rows left behind", m)
	}
}

func TestUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.SetPlan(t, allocation.PlanAgency)

	testutil.CreateTestAddOn(t, f.DB, f.Workspace.ID, allocation.AddOnExtraAdmin, 2, allocation.AddOnActive)
	testutil.CreateTestFunnel(t, f.DB, f.Workspace.ID, "One")
	testutil.CreateTestFunnel(t, f.DB, f.Workspace.ID, "Two")
	admin, _ := f.NewUser(t)
	testutil.AddTestMember(t, f.DB, f.Workspace, admin, access.RoleAdmin)
	viewer, _ := f.NewUser(t)
	testutil.AddTestMember(t, f.DB, f.Workspace, viewer, access.RoleViewer)

	u, err := f.svc.Usage(ctx, viewer.ID, f.Workspace.ID)
	require.NoError(t, err)

	assert.Equal(t, allocation.PlanAgency, u.Plan)
	assert.Equal(t, 2, u.Funnels.CurrentUsage)
	assert.Equal(t, 1, u.Funnels.RemainingSlots)
	assert.Equal(t, 3, u.Admins.TotalAllocation)
	assert.Equal(t, 1, u.Admins.CurrentUsage)
	assert.True(t, u.Admins.CanCreateMore)
	assert.Equal(t, int64(3), u.Members)

	// The viewer owns nothing, so the FREE ceiling of one applies to them.
	assert.Equal(t, 0, u.Workspaces.CurrentUsage)
	assert.Equal(t, 1, u.Workspaces.TotalAllocation)

	u, err = f.svc.Usage(ctx, f.Owner.ID, f.Workspace.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Workspaces.CurrentUsage)
	assert.Equal(t, 3, u.Workspaces.TotalAllocation)
}
