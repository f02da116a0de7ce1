package workspace

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
)

// AccessStore is the gorm-backed access.Store.
type AccessStore struct {
	db *gorm.DB
}

func NewAccessStore(db *gorm.DB) *AccessStore {
	return &AccessStore{db: db}
}

func (s *AccessStore) FindWorkspace(ctx context.Context, workspaceID int64) (*access.WorkspaceRef, error) {
	var ws models.Workspace
	err := s.db.WithContext(ctx).Select("id", "name", "owner_id").First(&ws, workspaceID).Error
	if database.IsNotFound(err) {
		return nil, access.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	return ws.Ref(), nil
}

func (s *AccessStore) FindMembership(ctx context.Context, userID, workspaceID int64) (*access.Membership, error) {
	var m models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		First(&m).Error
	if database.IsNotFound(err) {
		return nil, access.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading membership: %w", err)
	}
	return m.Membership(), nil
}
