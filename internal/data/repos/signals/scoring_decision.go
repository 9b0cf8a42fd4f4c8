package signals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// EmbeddedDecision is a decision joined with its chunk's embedding.
type EmbeddedDecision struct {
	DecisionID uuid.UUID      `gorm:"column:decision_id"`
	ChunkID    uuid.UUID      `gorm:"column:chunk_id"`
	UserAction types.Action   `gorm:"column:user_action"`
	ActionAt   *time.Time     `gorm:"column:action_at"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	Embedding  datatypes.JSON `gorm:"column:embedding"`
}

type ScoringDecisionRepo interface {
	// CreateIfAbsent inserts row unless a decision for (chunk, user) exists.
	// It returns the stored row and whether this call created it.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, row *types.ScoringDecision) (*types.ScoringDecision, bool, error)

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScoringDecision, error)
	GetByChunkAndUser(ctx context.Context, tx *gorm.DB, chunkID, userID uuid.UUID) (*types.ScoringDecision, error)

	// SetAction moves a decision from one action to another. It returns false
	// when the stored action no longer equals from.
	SetAction(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.Action, at time.Time) (bool, error)

	ListRecentHistory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, excludeChunkID uuid.UUID, limit int) ([]EmbeddedDecision, error)
	ListActioned(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]EmbeddedDecision, error)

	DeleteUnactionedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type scoringDecisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScoringDecisionRepo(db *gorm.DB, baseLog *logger.Logger) ScoringDecisionRepo {
	return &scoringDecisionRepo{db: db, log: baseLog.With("repo", "ScoringDecisionRepo")}
}

func (r *scoringDecisionRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, row *types.ScoringDecision) (*types.ScoringDecision, bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.ChunkID == uuid.Nil || row.UserID == uuid.Nil {
		return nil, false, nil
	}
	res := t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return row, true, nil
	}
	existing, err := r.GetByChunkAndUser(ctx, t, row.ChunkID, row.UserID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *scoringDecisionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScoringDecision, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ScoringDecision
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *scoringDecisionRepo) GetByChunkAndUser(ctx context.Context, tx *gorm.DB, chunkID, userID uuid.UUID) (*types.ScoringDecision, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if chunkID == uuid.Nil || userID == uuid.Nil {
		return nil, nil
	}
	var row types.ScoringDecision
	if err := t.WithContext(ctx).
		Where("chunk_id = ? AND user_id = ?", chunkID, userID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *scoringDecisionRepo) SetAction(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.Action, at time.Time) (bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	updates := map[string]interface{}{
		"user_action": to,
		"updated_at":  at,
	}
	if to == types.ActionUnset {
		updates["action_at"] = nil
	} else {
		updates["action_at"] = at
	}
	res := t.WithContext(ctx).
		Model(&types.ScoringDecision{}).
		Where("id = ? AND user_action = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *scoringDecisionRepo) embeddedQuery(t *gorm.DB) *gorm.DB {
	return t.Table("scoring_decision AS d").
		Select("d.id AS decision_id, d.chunk_id, d.user_action, d.action_at, d.created_at, c.embedding").
		Joins("JOIN content_chunk AS c ON c.id = d.chunk_id")
}

// ListRecentHistory returns the user's surfaced or saved chunks, newest first.
func (r *scoringDecisionRepo) ListRecentHistory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, excludeChunkID uuid.UUID, limit int) ([]EmbeddedDecision, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []EmbeddedDecision
	if userID == uuid.Nil {
		return out, nil
	}
	q := r.embeddedQuery(t.WithContext(ctx)).
		Where("d.user_id = ?", userID).
		Where("(d.passed = ? OR d.user_action = ?)", true, types.ActionSaved)
	if !since.IsZero() {
		q = q.Where("d.created_at >= ?", since)
	}
	if excludeChunkID != uuid.Nil {
		q = q.Where("d.chunk_id <> ?", excludeChunkID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("d.created_at DESC").Order("d.id DESC").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListActioned returns saved and skipped decisions in the order the actions
// were taken.
func (r *scoringDecisionRepo) ListActioned(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]EmbeddedDecision, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []EmbeddedDecision
	if userID == uuid.Nil {
		return out, nil
	}
	if err := r.embeddedQuery(t.WithContext(ctx)).
		Where("d.user_id = ?", userID).
		Where("d.user_action IN ?", []types.Action{types.ActionSaved, types.ActionSkipped}).
		Order("d.action_at ASC").
		Order("d.id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scoringDecisionRepo) DeleteUnactionedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if cutoff.IsZero() {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Where("user_action = ? AND created_at < ?", types.ActionUnset, cutoff).
		Delete(&types.ScoringDecision{})
	return res.RowsAffected, res.Error
}
