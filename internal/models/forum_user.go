package models

import (
	"time"
)

// ForumUser binds an application user to a forum account within one project.
// Owned by the account-linking subsystem; the engine reads it to know who to
// fetch and writes back last_processed_at after a successful run.
type ForumUser struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string `gorm:"type:varchar(100);not null;uniqueIndex:idx_forum_user_pair" json:"user_id"`
	ProjectID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_forum_user_pair" json:"project_id"`

	Username    string `gorm:"type:varchar(100)" json:"username"`
	DisplayName string `gorm:"type:varchar(200)" json:"display_name"`

	VerificationCode *string `gorm:"type:varchar(100)" json:"verification_code,omitempty"`
	Verified         bool    `gorm:"default:false" json:"verified"`

	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ForumUser) TableName() string {
	return "forum_users"
}
