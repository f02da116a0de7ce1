package models

type Funnel struct {
	Base
	WorkspaceID int64  `gorm:"uniqueIndex:idx_funnel_workspace_slug;not null" json:"workspace_id"`
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex:idx_funnel_workspace_slug;not null" json:"slug"`
	Published   bool   `gorm:"default:false" json:"published"`

	Pages []Page `gorm:"foreignKey:FunnelID" json:"pages,omitempty"`
}

func (Funnel) TableName() string {
	return "funnels"
}

// Page.LinkingID is a stable handle other pages reference in their content.
type Page struct {
	Base
	FunnelID  int64  `gorm:"index;not null" json:"funnel_id"`
	Name      string `gorm:"not null" json:"name"`
	Path      string `gorm:"not null" json:"path"`
	Content   string `gorm:"type:text" json:"content"`
	Position  int    `gorm:"not null;default:0" json:"position"`
	LinkingID string `gorm:"uniqueIndex;not null" json:"linking_id"`
}

func (Page) TableName() string {
	return "pages"
}
