package models

import (
	"time"
)

const (
	PromptTypeRaw   = "raw"
	PromptTypeSmart = "smart"
)

// Prompt is one version of a prompt template for a signal dimension.
// Append-only: new versions are inserted, existing rows are never edited.
type Prompt struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalStrengthID uint64 `gorm:"not null;index:idx_prompts_signal_type" json:"signal_strength_id"`
	Type             string `gorm:"type:varchar(10);not null;index:idx_prompts_signal_type" json:"type"`
	Text             string `gorm:"type:text;not null" json:"text"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Prompt) TableName() string {
	return "prompts"
}
