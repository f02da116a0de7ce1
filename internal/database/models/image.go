package models

type Image struct {
	Base
	WorkspaceID int64  `gorm:"index;not null" json:"workspace_id"`
	BlobName    string `gorm:"uniqueIndex;not null" json:"-"`
	URL         string `gorm:"not null" json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `gorm:"not null" json:"content_type"`
	Size        int64  `json:"size"`
	UploadedBy  int64  `json:"uploaded_by"`
}

func (Image) TableName() string {
	return "images"
}
