package models

import (
	"time"
)

// SignalStrength is a scoring dimension (e.g. forum engagement). Rows are
// immutable once created; prompt revisions are appended to the prompts table.
type SignalStrength struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SignalStrength) TableName() string {
	return "signal_strengths"
}
