package models

import "time"

// Base carries the integer primary key and timestamps every table shares.
// Rows are hard-deleted: allocation counts and unique slugs/hostnames must
// not see tombstones.
type Base struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
