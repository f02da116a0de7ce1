package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memberKey struct {
	userID      int64
	workspaceID int64
}

type fakeStore struct {
	workspaces  map[int64]access.WorkspaceRef
	memberships map[memberKey]access.Membership
	err         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workspaces:  make(map[int64]access.WorkspaceRef),
		memberships: make(map[memberKey]access.Membership),
	}
}

func (s *fakeStore) FindWorkspace(_ context.Context, id int64) (*access.WorkspaceRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, access.ErrRecordNotFound
	}
	return &ws, nil
}

func (s *fakeStore) FindMembership(_ context.Context, userID, workspaceID int64) (*access.Membership, error) {
	m, ok := s.memberships[memberKey{userID, workspaceID}]
	if !ok {
		return nil, access.ErrRecordNotFound
	}
	return &m, nil
}

type countingRecorder map[access.Outcome]int

func (c countingRecorder) RecordAccess(o access.Outcome) { c[o]++ }

const (
	ownerID     int64 = 1
	memberID    int64 = 2
	strangerID  int64 = 3
	workspaceID int64 = 10
)

func setupResolver(t *testing.T) (*access.Resolver, *fakeStore, countingRecorder) {
	t.Helper()
	store := newFakeStore()
	store.workspaces[workspaceID] = access.WorkspaceRef{ID: workspaceID, Name: "Acme", OwnerID: ownerID}
	rec := countingRecorder{}
	return access.NewResolver(store, nil, rec), store, rec
}

func TestResolver_Owner(t *testing.T) {
	resolver, store, _ := setupResolver(t)
	ctx := context.Background()

	t.Run("owner without membership row", func(t *testing.T) {
		res, err := resolver.Resolve(ctx, ownerID, workspaceID)
		require.NoError(t, err)
		assert.True(t, res.HasAccess)
		assert.True(t, res.IsOwner())
		assert.Equal(t, access.RoleOwner, res.UserRole())
		assert.Empty(t, res.UserPermissions())
		assert.Equal(t, "Acme", res.Workspace.Name)
	})

	t.Run("owner ignores a stray membership row", func(t *testing.T) {
		store.memberships[memberKey{ownerID, workspaceID}] = access.Membership{Role: access.RoleViewer}
		defer delete(store.memberships, memberKey{ownerID, workspaceID})

		res, err := resolver.Resolve(ctx, ownerID, workspaceID, access.PermDeleteDomains)
		require.NoError(t, err)
		assert.Equal(t, access.RoleOwner, res.UserRole())
	})

	t.Run("owner passes every required permission", func(t *testing.T) {
		res, err := resolver.Resolve(ctx, ownerID, workspaceID, access.AllPermissions()...)
		require.NoError(t, err)
		assert.NoError(t, res.RequireOwner())
	})
}

func TestResolver_NotFound(t *testing.T) {
	resolver, _, rec := setupResolver(t)
	ctx := context.Background()

	_, errMissing := resolver.Resolve(ctx, strangerID, 999)
	_, errStranger := resolver.Resolve(ctx, strangerID, workspaceID)

	assert.ErrorIs(t, errMissing, access.ErrNotFound)
	assert.ErrorIs(t, errStranger, access.ErrNotFound)
	assert.Equal(t, errMissing.Error(), errStranger.Error())
	assert.Equal(t, 2, rec[access.OutcomeNotFound])
}

func TestResolver_EditorPermissions(t *testing.T) {
	resolver, store, rec := setupResolver(t)
	ctx := context.Background()
	key := memberKey{memberID, workspaceID}

	store.memberships[key] = access.Membership{
		Role:        access.RoleEditor,
		Permissions: access.Permissions{access.PermViewFunnels},
	}

	_, err := resolver.Resolve(ctx, memberID, workspaceID, access.PermCreateFunnels)
	require.Error(t, err)
	assert.ErrorIs(t, err, access.ErrForbidden)

	var forbidden *access.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, []access.Permission{access.PermCreateFunnels}, forbidden.Missing)
	assert.Contains(t, forbidden.Error(), "Acme")
	assert.Equal(t, 1, rec[access.OutcomeForbidden])

	store.memberships[key] = access.Membership{
		Role:        access.RoleEditor,
		Permissions: access.Permissions{access.PermViewFunnels, access.PermCreateFunnels},
	}

	res, err := resolver.Resolve(ctx, memberID, workspaceID, access.PermCreateFunnels)
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, res.UserRole())
	assert.True(t, res.Can(access.PermViewFunnels))
	assert.False(t, res.Can(access.PermDeleteFunnels))
	assert.False(t, res.IsOwner())
	assert.ErrorIs(t, res.RequireOwner(), access.ErrForbidden)
}

func TestResolver_AdminSatisfiesAnyPermission(t *testing.T) {
	resolver, store, _ := setupResolver(t)
	store.memberships[memberKey{memberID, workspaceID}] = access.Membership{Role: access.RoleAdmin}

	res, err := resolver.Resolve(context.Background(), memberID, workspaceID, access.AllPermissions()...)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, res.UserRole())
}

func TestResolver_ViewerWithoutRequirements(t *testing.T) {
	resolver, store, _ := setupResolver(t)
	store.memberships[memberKey{memberID, workspaceID}] = access.Membership{Role: access.RoleViewer}

	res, err := resolver.Resolve(context.Background(), memberID, workspaceID)
	require.NoError(t, err)
	assert.True(t, res.HasAccess)
	assert.Equal(t, access.RoleViewer, res.UserRole())
	assert.NotNil(t, res.UserPermissions())
}

func TestResolver_StoredOwnerRowIsRejected(t *testing.T) {
	resolver, store, _ := setupResolver(t)
	store.memberships[memberKey{memberID, workspaceID}] = access.Membership{Role: access.RoleOwner}

	_, err := resolver.Resolve(context.Background(), memberID, workspaceID)
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestResolver_StoreFailure(t *testing.T) {
	resolver, store, _ := setupResolver(t)
	store.err = errors.New("connection reset")

	_, err := resolver.Resolve(context.Background(), ownerID, workspaceID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, access.ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}
