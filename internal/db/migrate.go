package db

import (
	"signalscore/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.SignalStrength{},
		&models.Prompt{},
		&models.SignalStrengthConfig{},
		&models.ForumUser{},
		&models.UserSignalStrength{},
	)
}
