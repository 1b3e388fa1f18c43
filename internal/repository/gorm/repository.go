package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"signalscore/internal/models"
	"signalscore/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- signal definitions -----------------------------------------------------

func (s *Store) GetSignalStrengthByName(ctx context.Context, name string) (*models.SignalStrength, error) {
	var item models.SignalStrength
	err := s.db.WithContext(ctx).
		Where("name = ?", strings.TrimSpace(name)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) EnsureSignalStrength(ctx context.Context, name string) (*models.SignalStrength, error) {
	existing, err := s.GetSignalStrengthByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	item := models.SignalStrength{Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// GetLatestPrompt returns the most recently created valid prompt of the given
// type. Valid means non-empty text; blank revisions are skipped.
func (s *Store) GetLatestPrompt(ctx context.Context, signalStrengthID uint64, promptType string) (*models.Prompt, error) {
	var item models.Prompt
	err := s.db.WithContext(ctx).
		Where("signal_strength_id = ?", signalStrengthID).
		Where("type = ?", promptType).
		Where("TRIM(text) <> ''").
		Order("created_at desc").
		Order("id desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- per-project configuration ----------------------------------------------

func (s *Store) GetSignalStrengthConfig(ctx context.Context, signalStrengthID uint64, projectID string) (*models.SignalStrengthConfig, error) {
	var item models.SignalStrengthConfig
	err := s.db.WithContext(ctx).
		Where("signal_strength_id = ?", signalStrengthID).
		Where("project_id = ?", projectID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- platform users ----------------------------------------------------------

func (s *Store) GetForumUser(ctx context.Context, userID, projectID string) (*models.ForumUser, error) {
	var item models.ForumUser
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("project_id = ?", projectID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListForumUsers(ctx context.Context) ([]models.ForumUser, error) {
	var items []models.ForumUser
	if err := s.db.WithContext(ctx).
		Order("project_id asc, user_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetForumUserLastProcessed(ctx context.Context, userID, projectID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.ForumUser{}).
		Where("user_id = ?", userID).
		Where("project_id = ?", projectID).
		Update("last_processed_at", at.UTC()).Error
}

// --- score rows ---------------------------------------------------------------

// production narrows a score query to rows that count for idempotence checks
// and aggregation: not test-originated and not a liveness marker.
func production(q *gorm.DB) *gorm.DB {
	return q.
		Where("test_requesting_user IS NULL").
		Where("request_id NOT LIKE ?", models.LivenessRequestIDPrefix+"%")
}

func (s *Store) keyQuery(ctx context.Context, key repository.ScoreKey) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.UserSignalStrength{}).
		Where("user_id = ?", key.UserID).
		Where("project_id = ?", key.ProjectID).
		Where("signal_strength_id = ?", key.SignalStrengthID).
		Where("day = ?", key.Day)
}

func (s *Store) RawScoreExists(ctx context.Context, key repository.ScoreKey) (bool, error) {
	var count int64
	err := production(s.keyQuery(ctx, key)).
		Where("raw_value IS NOT NULL").
		Count(&count).Error
	return count > 0, err
}

func (s *Store) SmartScoreExists(ctx context.Context, key repository.ScoreKey) (bool, error) {
	var count int64
	err := production(s.keyQuery(ctx, key)).
		Where("value IS NOT NULL").
		Count(&count).Error
	return count > 0, err
}

// SaveScore replaces the production row for the item's logical key and kind:
// delete-matching-then-insert, atomically. A delete failure aborts before the
// insert; the two stages are reported distinctly. Test rows are inserted
// as-is and never displace production data.
func (s *Store) SaveScore(ctx context.Context, item *models.UserSignalStrength) error {
	if item == nil {
		return nil
	}
	if item.TestRequestingUser != nil {
		if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
			return &repository.PersistenceError{Stage: "insert", Err: err}
		}
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := production(tx.
			Where("user_id = ?", item.UserID).
			Where("project_id = ?", item.ProjectID).
			Where("signal_strength_id = ?", item.SignalStrengthID).
			Where("day = ?", item.Day))
		if item.RawValue != nil {
			del = del.Where("raw_value IS NOT NULL")
		} else {
			del = del.Where("value IS NOT NULL")
		}
		if err := del.Delete(&models.UserSignalStrength{}).Error; err != nil {
			return &repository.PersistenceError{Stage: "delete", Err: err}
		}
		if err := tx.Create(item).Error; err != nil {
			return &repository.PersistenceError{Stage: "insert", Err: err}
		}
		return nil
	})
}

func (s *Store) ListRawScores(ctx context.Context, userID, projectID string, signalStrengthID uint64, sinceDay string) ([]models.UserSignalStrength, error) {
	var items []models.UserSignalStrength
	err := production(s.db.WithContext(ctx).
		Model(&models.UserSignalStrength{}).
		Where("user_id = ?", userID).
		Where("project_id = ?", projectID).
		Where("signal_strength_id = ?", signalStrengthID).
		Where("day >= ?", sinceDay).
		Where("raw_value IS NOT NULL")).
		Order("day asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListScores(ctx context.Context, params repository.ListScoresParams) ([]models.UserSignalStrength, error) {
	query := s.db.WithContext(ctx).
		Model(&models.UserSignalStrength{}).
		Where("request_id NOT LIKE ?", models.LivenessRequestIDPrefix+"%")
	if !params.IncludeTest {
		query = query.Where("test_requesting_user IS NULL")
	}
	if params.UserID != "" {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.ProjectID != "" {
		query = query.Where("project_id = ?", params.ProjectID)
	}
	if params.SignalStrengthID != 0 {
		query = query.Where("signal_strength_id = ?", params.SignalStrengthID)
	}
	switch params.Kind {
	case "raw":
		query = query.Where("raw_value IS NOT NULL")
	case "smart":
		query = query.Where("value IS NOT NULL")
	}
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.UserSignalStrength
	if err := query.Order("day desc").Order("id desc").
		Limit(limit).Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CleanupDuplicateScores compensates for the non-atomic window between delete
// and insert under concurrent runs: for each score kind it keeps the most
// recently inserted production row for the key and deletes the rest.
func (s *Store) CleanupDuplicateScores(ctx context.Context, key repository.ScoreKey) (int64, error) {
	var total int64
	for _, column := range []string{"raw_value", "value"} {
		var maxID *uint64
		err := production(s.keyQuery(ctx, key)).
			Where(column + " IS NOT NULL").
			Select("MAX(id)").
			Scan(&maxID).Error
		if err != nil {
			return total, err
		}
		if maxID == nil || *maxID == 0 {
			continue
		}
		res := production(s.keyQuery(ctx, key)).
			Where(column+" IS NOT NULL").
			Where("id <> ?", *maxID).
			Delete(&models.UserSignalStrength{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// --- liveness markers ---------------------------------------------------------

func (s *Store) SetLivenessMarker(ctx context.Context, userID, projectID string, signalStrengthID uint64, day string) error {
	requestID := models.LivenessRequestID(userID, projectID, signalStrengthID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("request_id = ?", requestID).
			Delete(&models.UserSignalStrength{}).Error; err != nil {
			return err
		}
		marker := models.UserSignalStrength{
			UserID:           userID,
			ProjectID:        projectID,
			SignalStrengthID: signalStrengthID,
			Day:              day,
			RequestID:        requestID,
			Created:          time.Now().Unix(),
		}
		return tx.Create(&marker).Error
	})
}

func (s *Store) ClearLivenessMarker(ctx context.Context, userID, projectID string, signalStrengthID uint64) error {
	requestID := models.LivenessRequestID(userID, projectID, signalStrengthID)
	return s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Delete(&models.UserSignalStrength{}).Error
}
