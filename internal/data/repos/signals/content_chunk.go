package signals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// ContentChunkRepo is read access to chunks written by ingestion. Create exists
// for ingestion-side callers and fixtures.
type ContentChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.ContentChunk) ([]*types.ContentChunk, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentChunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ContentChunk, error)
}

type contentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentChunkRepo(db *gorm.DB, baseLog *logger.Logger) ContentChunkRepo {
	return &contentChunkRepo{db: db, log: baseLog.With("repo", "ContentChunkRepo")}
}

func (r *contentChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.ContentChunk) ([]*types.ContentChunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(chunks) == 0 {
		return []*types.ContentChunk{}, nil
	}
	if err := t.WithContext(ctx).Create(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *contentChunkRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentChunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ContentChunk
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *contentChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ContentChunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.ContentChunk
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
