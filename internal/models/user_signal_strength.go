package models

import (
	"fmt"
	"strings"
)

// LivenessRequestIDPrefix marks transient "processing in progress" rows that
// share the score table. They carry neither a raw nor a smart value and must be
// excluded from every production read.
const LivenessRequestIDPrefix = "last_checked_"

// UserSignalStrength is one persisted score row. The logical key is
// (user_id, project_id, signal_strength_id, day) per score kind: a row holds
// exactly one of raw_value (daily score) or value (aggregated smart score).
// Production rows are replaced, never updated in place.
type UserSignalStrength struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           string `gorm:"type:varchar(100);not null;index:idx_uss_key" json:"user_id"`
	ProjectID        string `gorm:"type:varchar(100);not null;index:idx_uss_key" json:"project_id"`
	SignalStrengthID uint64 `gorm:"not null;index:idx_uss_key" json:"signal_strength_id"`
	Day              string `gorm:"type:varchar(10);not null;index:idx_uss_key" json:"day"`

	RawValue *float64 `gorm:"type:double precision" json:"raw_value,omitempty"`
	Value    *float64 `gorm:"type:double precision" json:"value,omitempty"`
	MaxValue float64  `gorm:"not null;default:0" json:"max_value"`

	Summary            string `gorm:"type:text" json:"summary"`
	Description        string `gorm:"type:text" json:"description"`
	Improvements       string `gorm:"type:text" json:"improvements"`
	ExplainedReasoning string `gorm:"type:text" json:"explained_reasoning"`

	Model            string  `gorm:"type:varchar(100)" json:"model"`
	Temperature      float64 `gorm:"default:0" json:"temperature"`
	PromptID         *uint64 `gorm:"index" json:"prompt_id,omitempty"`
	PromptTokens     int     `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int     `gorm:"default:0" json:"completion_tokens"`

	RequestID          string  `gorm:"type:varchar(200);index" json:"request_id"`
	TestRequestingUser *string `gorm:"type:varchar(100);index" json:"test_requesting_user,omitempty"`

	// Unix seconds at insert time.
	Created int64 `gorm:"not null" json:"created"`
}

func (UserSignalStrength) TableName() string {
	return "user_signal_strengths"
}

// IsLiveness reports whether the row is a transient liveness marker.
func (u UserSignalStrength) IsLiveness() bool {
	return strings.HasPrefix(u.RequestID, LivenessRequestIDPrefix)
}

// LivenessRequestID builds the synthetic request_id for a liveness marker row.
func LivenessRequestID(userID, projectID string, signalStrengthID uint64) string {
	return fmt.Sprintf("%s%s_%s_%d", LivenessRequestIDPrefix, userID, projectID, signalStrengthID)
}
