package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/domain/signals"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&signals.ContentChunk{},
		&signals.ScoringDecision{},
		&signals.UserCentroid{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
