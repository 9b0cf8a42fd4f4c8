package signals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

type UserCentroidRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserCentroid, error)
	// Insert creates the row at version 1.
	Insert(ctx context.Context, tx *gorm.DB, row *types.UserCentroid) error
	// UpdateIfVersion writes row when the stored version equals expected and
	// bumps the version. It returns false when the version moved.
	UpdateIfVersion(ctx context.Context, tx *gorm.DB, row *types.UserCentroid, expected int64) (bool, error)
	ListStaleUserIDs(ctx context.Context, tx *gorm.DB, before time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type userCentroidRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserCentroidRepo(db *gorm.DB, baseLog *logger.Logger) UserCentroidRepo {
	return &userCentroidRepo{db: db, log: baseLog.With("repo", "UserCentroidRepo")}
}

func (r *userCentroidRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserCentroid, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.UserCentroid
	if err := t.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.UserID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *userCentroidRepo) Insert(ctx context.Context, tx *gorm.DB, row *types.UserCentroid) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.UserID == uuid.Nil {
		return nil
	}
	row.Version = 1
	return t.WithContext(ctx).Create(row).Error
}

func (r *userCentroidRepo) UpdateIfVersion(ctx context.Context, tx *gorm.DB, row *types.UserCentroid, expected int64) (bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.UserID == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	res := t.WithContext(ctx).
		Model(&types.UserCentroid{}).
		Where("user_id = ? AND version = ?", row.UserID, expected).
		Updates(map[string]interface{}{
			"vector":             row.Vector,
			"saved_count":        row.SavedCount,
			"skipped_count":      row.SkippedCount,
			"last_recomputed_at": row.LastRecomputedAt,
			"version":            expected + 1,
			"updated_at":         now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	row.Version = expected + 1
	row.UpdatedAt = now
	return true, nil
}

// ListStaleUserIDs returns users never recomputed or last recomputed before
// the cutoff, in user_id order starting after the given cursor. A nil cursor
// starts from the beginning.
func (r *userCentroidRepo) ListStaleUserIDs(ctx context.Context, tx *gorm.DB, before time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var ids []uuid.UUID
	q := t.WithContext(ctx).
		Model(&types.UserCentroid{}).
		Where("(last_recomputed_at IS NULL OR last_recomputed_at < ?)", before)
	if after != uuid.Nil {
		q = q.Where("user_id > ?", after)
	}
	q = q.Order("user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
