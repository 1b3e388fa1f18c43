package repository

import (
	"context"
	"fmt"
	"time"

	"signalscore/internal/models"
)

// DefaultLookbackDays is the fallback lookback window when a project/signal
// pair has no configured previous_days. Defined once; callers must not
// duplicate it.
const DefaultLookbackDays = 30

// ScoreKey is the logical key of one production score row.
type ScoreKey struct {
	UserID           string
	ProjectID        string
	SignalStrengthID uint64
	Day              string
}

// PersistenceError reports which stage of the delete-then-insert sequence
// failed, so operators can tell whether a stale row may remain.
type PersistenceError struct {
	Stage string // "delete" | "insert"
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s failed: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type ListScoresParams struct {
	UserID           string
	ProjectID        string
	SignalStrengthID uint64
	Kind             string // "raw" | "smart" | ""
	IncludeTest      bool
	Limit            int
	Offset           int
}

// Repository is the persistence boundary of the scoring engine. Every
// "already exists" check excludes test-originated rows and liveness markers.
type Repository interface {
	// Signal definitions and prompts.
	GetSignalStrengthByName(ctx context.Context, name string) (*models.SignalStrength, error)
	EnsureSignalStrength(ctx context.Context, name string) (*models.SignalStrength, error)
	GetLatestPrompt(ctx context.Context, signalStrengthID uint64, promptType string) (*models.Prompt, error)

	// Per-project configuration. Absence is a normal outcome: (nil, nil).
	GetSignalStrengthConfig(ctx context.Context, signalStrengthID uint64, projectID string) (*models.SignalStrengthConfig, error)

	// Platform users.
	GetForumUser(ctx context.Context, userID, projectID string) (*models.ForumUser, error)
	ListForumUsers(ctx context.Context) ([]models.ForumUser, error)
	SetForumUserLastProcessed(ctx context.Context, userID, projectID string, at time.Time) error

	// Score rows.
	RawScoreExists(ctx context.Context, key ScoreKey) (bool, error)
	SmartScoreExists(ctx context.Context, key ScoreKey) (bool, error)
	SaveScore(ctx context.Context, item *models.UserSignalStrength) error
	ListRawScores(ctx context.Context, userID, projectID string, signalStrengthID uint64, sinceDay string) ([]models.UserSignalStrength, error)
	ListScores(ctx context.Context, params ListScoresParams) ([]models.UserSignalStrength, error)
	CleanupDuplicateScores(ctx context.Context, key ScoreKey) (int64, error)

	// Liveness markers.
	SetLivenessMarker(ctx context.Context, userID, projectID string, signalStrengthID uint64, day string) error
	ClearLivenessMarker(ctx context.Context, userID, projectID string, signalStrengthID uint64) error
}
