package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hugh/funnel-builder/internal/database/models"
)

// LockWorkspace loads the workspace with SELECT ... FOR UPDATE. Allocation
// guards call it before counting so that concurrent creators in the same
// workspace serialise on the row instead of both passing the check.
// It must be called on a transaction handle.
func LockWorkspace(tx *gorm.DB, id int64) (*models.Workspace, error) {
	var ws models.Workspace
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ws, id).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

// LockUser does the same for a user row; workspace creation is limited per
// owner, so that guard serialises on the owner instead.
func LockUser(tx *gorm.DB, id int64) (*models.User, error) {
	var u models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
