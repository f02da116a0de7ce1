package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/pkg/util"
)

var dbCounter atomic.Int64

// SetupTestDB creates a private in-memory SQLite database with every table
// migrated. It is closed automatically when the test ends.
//
// The pool is pinned to a single connection so every query sees the same
// in-memory database; code under test must therefore use the transaction
// handle, not the root *gorm.DB, inside Transaction callbacks.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=private", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Logger discards everything below error.
func Logger() *slog.Logger {
	return util.DiscardLogger()
}

func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// CreateTestUser creates an active user with password "testpassword123".
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        "test-" + uuid.NewString()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func CreateTestWorkspace(t *testing.T, db *gorm.DB, owner *models.User, plan allocation.PlanTier) *models.Workspace {
	t.Helper()

	ws := &models.Workspace{
		Name:    "Test Workspace",
		Slug:    util.UniqueSlug("test workspace"),
		OwnerID: owner.ID,
		Plan:    plan,
	}
	if err := db.Create(ws).Error; err != nil {
		t.Fatalf("failed to create test workspace: %v", err)
	}
	return ws
}

// AddTestMember inserts a membership row directly, bypassing allocation
// guards.
func AddTestMember(t *testing.T, db *gorm.DB, ws *models.Workspace, user *models.User, role access.Role, perms ...access.Permission) *models.WorkspaceMember {
	t.Helper()

	m := &models.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      user.ID,
		Role:        role,
		Permissions: access.Permissions(perms),
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to create test member: %v", err)
	}
	return m
}

func CreateTestAddOn(t *testing.T, db *gorm.DB, workspaceID int64, typ allocation.AddOnType, quantity int, status allocation.AddOnStatus) *models.AddOn {
	t.Helper()

	a := &models.AddOn{
		WorkspaceID: workspaceID,
		Type:        typ,
		Quantity:    quantity,
		Status:      status,
		ExternalRef: "si_" + uuid.NewString(),
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("failed to create test add-on: %v", err)
	}
	return a
}

func CreateTestFunnel(t *testing.T, db *gorm.DB, workspaceID int64, name string) *models.Funnel {
	t.Helper()

	f := &models.Funnel{
		WorkspaceID: workspaceID,
		Name:        name,
		Slug:        util.Slugify(name) + "-" + uuid.NewString()[:4],
	}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("failed to create test funnel: %v", err)
	}
	return f
}

func CreateTestPage(t *testing.T, db *gorm.DB, funnelID int64, position int) *models.Page {
	t.Helper()

	p := &models.Page{
		FunnelID:  funnelID,
		Name:      fmt.Sprintf("Page %d", position),
		Path:      fmt.Sprintf("/page-%d", position),
		Position:  position,
		LinkingID: uuid.NewString(),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create test page: %v", err)
	}
	return p
}

func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates a JSON request carrying a bearer token.
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext returns a context cancelled when the test ends.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds the common fixtures: an owner with a workspace and a token.
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Owner      *models.User
	Workspace  *models.Workspace
	Token      string
}

// NewTestContext creates a database, an owner, a FREE workspace and a token.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	owner := CreateTestUser(t, db)
	ws := CreateTestWorkspace(t, db, owner, allocation.PlanFree)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Owner:      owner,
		Workspace:  ws,
		Token:      GenerateTestToken(t, jwtService, owner),
	}
}

// NewUser creates another user and returns it with a token.
func (ts *TestSetup) NewUser(t *testing.T) (*models.User, string) {
	t.Helper()
	u := CreateTestUser(t, ts.DB)
	return u, GenerateTestToken(t, ts.JWTService, u)
}

// SetPlan changes the workspace tier in place.
func (ts *TestSetup) SetPlan(t *testing.T, plan allocation.PlanTier) {
	t.Helper()
	if err := ts.DB.Model(ts.Workspace).Update("plan", plan).Error; err != nil {
		t.Fatalf("failed to set plan: %v", err)
	}
	ts.Workspace.Plan = plan
}
