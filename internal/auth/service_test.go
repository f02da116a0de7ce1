package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/testutil"
)

func TestService_Register(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := auth.NewService(db, testutil.CreateTestJWTService())
	ctx := context.Background()

	resp, err := svc.Register(ctx, auth.RegisterInput{
		Email:    "  New@Example.com ",
		Password: "password123",
		Name:     "Dana",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "new@example.com", resp.User.Email)

	require.NotNil(t, resp.Workspace)
	assert.Equal(t, "Dana's Workspace", resp.Workspace.Name)
	assert.Equal(t, resp.User.ID, resp.Workspace.OwnerID)
	assert.Equal(t, allocation.PlanFree, resp.Workspace.Plan)

	var members int64
	require.NoError(t, db.Model(&models.WorkspaceMember{}).Count(&members).Error)
	assert.Zero(t, members, "ownership is never stored as a membership row")

	_, err = svc.Register(ctx, auth.RegisterInput{Email: "new@example.com", Password: "password123", Name: "Again"})
	assert.ErrorIs(t, err, auth.ErrUserExists)
}

func TestService_Login(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := auth.NewService(db, testutil.CreateTestJWTService())
	ctx := context.Background()

	_, err := svc.Register(ctx, auth.RegisterInput{
		Email:         "login@example.com",
		Password:      "password123",
		Name:          "Lee",
		WorkspaceName: "Lee Media",
	})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, auth.LoginInput{Email: "LOGIN@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Login(ctx, auth.LoginInput{Email: "login@example.com", Password: "nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, auth.LoginInput{Email: "missing@example.com", Password: "password123"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "login@example.com").Update("is_active", false).Error)
	_, err = svc.Login(ctx, auth.LoginInput{Email: "login@example.com", Password: "password123"})
	assert.ErrorIs(t, err, auth.ErrInactiveUser)
}

func TestService_GetUserByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := auth.NewService(db, testutil.CreateTestJWTService())
	user := testutil.CreateTestUser(t, db)

	got, err := svc.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = svc.GetUserByID(context.Background(), user.ID+999)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
