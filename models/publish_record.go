package models

import (
	"time"
)

// PublishRecord is the audit row written once per successful social post.
type PublishRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	BillID   string    `json:"bill_id" gorm:"index;not null"`
	PostURL  string    `json:"post_url" gorm:"uniqueIndex;not null"`
	PostedAt time.Time `json:"posted_at"`
}

// TableName sets the table name explicitly.
func (PublishRecord) TableName() string {
	return "publish_records"
}
