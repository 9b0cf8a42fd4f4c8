package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/repos/signals"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

type ContentChunkRepo = signals.ContentChunkRepo
type ScoringDecisionRepo = signals.ScoringDecisionRepo
type UserCentroidRepo = signals.UserCentroidRepo

type EmbeddedDecision = signals.EmbeddedDecision

func NewContentChunkRepo(db *gorm.DB, baseLog *logger.Logger) ContentChunkRepo {
	return signals.NewContentChunkRepo(db, baseLog)
}
func NewScoringDecisionRepo(db *gorm.DB, baseLog *logger.Logger) ScoringDecisionRepo {
	return signals.NewScoringDecisionRepo(db, baseLog)
}
func NewUserCentroidRepo(db *gorm.DB, baseLog *logger.Logger) UserCentroidRepo {
	return signals.NewUserCentroidRepo(db, baseLog)
}

// Repos bundles the stores the engine reads and writes.
type Repos struct {
	Chunks    ContentChunkRepo
	Decisions ScoringDecisionRepo
	Centroids UserCentroidRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) Repos {
	return Repos{
		Chunks:    NewContentChunkRepo(db, baseLog),
		Decisions: NewScoringDecisionRepo(db, baseLog),
		Centroids: NewUserCentroidRepo(db, baseLog),
	}
}
