package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/repos"
	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/centroid"
	"github.com/yungbote/signals-backend/internal/modules/signals/policy"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// Recorder receives one event per feedback call.
type Recorder interface {
	ObserveFeedback(action, outcome string)
}

// Result describes what RecordFeedback did.
type Result struct {
	DecisionID uuid.UUID
	UserID     uuid.UUID
	Previous   types.Action
	Action     types.Action
	Applied    bool
	Version    int64
}

type RecomputeReport struct {
	Recomputed int
	Failed     int
}

// Coordinator turns user actions into centroid updates exactly once per
// (decision, action) transition.
type Coordinator struct {
	store     *centroid.Store
	decisions repos.ScoringDecisionRepo
	chunks    repos.ContentChunkRepo
	retention policy.Retention
	rec       Recorder
	log       *logger.Logger
	now       func() time.Time
}

func NewCoordinator(
	store *centroid.Store,
	decisions repos.ScoringDecisionRepo,
	chunks repos.ContentChunkRepo,
	retention policy.Retention,
	rec Recorder,
	baseLog *logger.Logger,
) *Coordinator {
	if retention.RecomputeBatch <= 0 {
		retention.RecomputeBatch = 500
	}
	return &Coordinator{
		store:     store,
		decisions: decisions,
		chunks:    chunks,
		retention: retention,
		rec:       rec,
		log:       baseLog.With("service", "FeedbackCoordinator"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordFeedback moves decisionID to action. Repeating the recorded action is
// a no-op. Switching reverts the previous contribution before applying the
// new one, and unset only reverts. The action columns and the centroid commit
// together under the user's centroid lock.
func (c *Coordinator) RecordFeedback(ctx context.Context, decisionID uuid.UUID, action types.Action) (res Result, err error) {
	ctx, span := otel.Tracer("signals/feedback").Start(ctx, "feedback.record")
	defer span.End()
	defer func() {
		outcome := "applied"
		switch {
		case err != nil:
			outcome = "error"
		case !res.Applied:
			outcome = "noop"
		}
		if c.rec != nil {
			c.rec.ObserveFeedback(string(action), outcome)
		}
		span.SetAttributes(
			attribute.String("feedback.action", string(action)),
			attribute.String("feedback.outcome", outcome),
		)
	}()

	if _, ok := types.ParseAction(string(action)); !ok || action == "" {
		return Result{}, fmt.Errorf("%w: %q", errs.ErrUnknownAction, action)
	}
	res = Result{DecisionID: decisionID, Action: action}

	d, err := c.decisions.GetByID(ctx, nil, decisionID)
	if err != nil {
		return res, err
	}
	if d == nil {
		return res, fmt.Errorf("%w: %s", errs.ErrUnknownDecision, decisionID)
	}
	res.UserID = d.UserID
	res.Previous = d.UserAction
	if d.UserAction == action {
		return res, nil
	}

	vec, err := c.chunkEmbedding(ctx, d.ChunkID)
	if err != nil {
		return res, err
	}
	if err := c.store.CheckDim(vec); err != nil {
		return res, err
	}
	beta := c.store.Config().SkipRate

	st, err := c.store.Mutate(ctx, d.UserID, func(tx *gorm.DB, st *centroid.State) (bool, error) {
		cur, err := c.decisions.GetByID(ctx, tx, decisionID)
		if err != nil {
			return false, err
		}
		if cur == nil {
			return false, fmt.Errorf("%w: %s", errs.ErrUnknownDecision, decisionID)
		}
		res.Previous = cur.UserAction
		if cur.UserAction == action {
			return false, nil
		}

		switch cur.UserAction {
		case types.ActionSaved:
			err = st.UnSave(vec)
		case types.ActionSkipped:
			err = st.UnSkip(vec, beta)
		}
		if err != nil {
			return false, err
		}
		switch action {
		case types.ActionSaved:
			err = st.Save(vec)
		case types.ActionSkipped:
			err = st.Skip(vec, beta)
		}
		if err != nil {
			return false, err
		}

		ok, err := c.decisions.SetAction(ctx, tx, decisionID, cur.UserAction, action, c.now())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%w: decision %s action changed concurrently", errs.ErrConflict, decisionID)
		}
		res.Applied = true
		return true, nil
	})
	if err != nil {
		return res, err
	}
	res.Version = st.Version

	if res.Applied {
		c.log.Info("feedback applied",
			"decision_id", decisionID,
			"user_id", d.UserID,
			"from_action", res.Previous,
			"to_action", action,
			"centroid_version", st.Version,
		)
	}
	return res, nil
}

func (c *Coordinator) chunkEmbedding(ctx context.Context, chunkID uuid.UUID) ([]float32, error) {
	chunk, err := c.chunks.GetByID(ctx, nil, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, fmt.Errorf("%w: chunk %s", errs.ErrNotFound, chunkID)
	}
	vec, err := chunk.Vector()
	if err != nil {
		return nil, fmt.Errorf("decode chunk %s embedding: %w", chunkID, err)
	}
	return vec, nil
}

func (c *Coordinator) RecomputeCentroid(ctx context.Context, userID uuid.UUID) (*centroid.State, error) {
	st, err := c.store.RecomputeFromHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.log.Info("centroid recomputed",
		"user_id", userID,
		"saved", st.Saved,
		"skipped", st.Skipped,
		"centroid_version", st.Version,
	)
	return st, nil
}

// RecomputeStale recomputes every centroid not rebuilt within olderThan. A
// zero olderThan uses the configured interval. Per-user failures are counted
// and skipped.
func (c *Coordinator) RecomputeStale(ctx context.Context, olderThan time.Duration) (RecomputeReport, error) {
	if olderThan <= 0 {
		olderThan = c.retention.RecomputeAfter
	}
	cutoff := c.now().Add(-olderThan)
	batch := c.retention.RecomputeBatch

	var (
		report RecomputeReport
		cursor uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ids, err := c.store.ListStale(ctx, cutoff, cursor, batch)
		if err != nil {
			return report, err
		}
		for _, id := range ids {
			if _, err := c.store.RecomputeFromHistory(ctx, id); err != nil {
				report.Failed++
				c.log.Warn("stale centroid recompute failed", "user_id", id, "error", err)
				continue
			}
			report.Recomputed++
		}
		if len(ids) == 0 || len(ids) < batch {
			break
		}
		cursor = ids[len(ids)-1]
	}
	c.log.Info("stale centroid recompute done",
		"cutoff", cutoff,
		"recomputed", report.Recomputed,
		"failed", report.Failed,
	)
	return report, nil
}

// CleanupRetention deletes unactioned decisions older than the retention
// window. Saved and skipped decisions are history and stay.
func (c *Coordinator) CleanupRetention(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = c.now()
	}
	cutoff := now.Add(-c.retention.Unactioned)
	n, err := c.decisions.DeleteUnactionedBefore(ctx, nil, cutoff)
	if err != nil {
		return 0, err
	}
	c.log.Info("retention cleanup done", "cutoff", cutoff, "deleted", n)
	return n, nil
}
