package models

import (
	"time"
)

// SignalStrengthConfig is the per (project, signal) scoring configuration,
// including the dynamic AI configuration (model, sampling, bounds). Mutated by
// project administrators; the engine only reads it. If a pair has no row or
// enabled=false, the engine must not run for that pair.
type SignalStrengthConfig struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalStrengthID uint64 `gorm:"not null;uniqueIndex:idx_signal_config_pair" json:"signal_strength_id"`
	ProjectID        string `gorm:"type:varchar(100);not null;uniqueIndex:idx_signal_config_pair" json:"project_id"`

	Enabled      bool    `gorm:"default:false;index" json:"enabled"`
	MaxValue     float64 `gorm:"not null;default:10" json:"max_value"`
	PreviousDays int     `gorm:"not null;default:30" json:"previous_days"`

	Model       string  `gorm:"type:varchar(100)" json:"model"`
	Temperature float64 `gorm:"default:0" json:"temperature"`
	MaxTokens   int     `gorm:"default:0" json:"max_tokens"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SignalStrengthConfig) TableName() string {
	return "signal_strength_configs"
}
