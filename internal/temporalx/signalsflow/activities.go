package signalsflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/signals-backend/internal/data/repos"
	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/feedback"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// Coordinator is the feedback loop surface the activities drive.
type Coordinator interface {
	RecordFeedback(ctx context.Context, decisionID uuid.UUID, action types.Action) (feedback.Result, error)
	RecomputeStale(ctx context.Context, olderThan time.Duration) (feedback.RecomputeReport, error)
	CleanupRetention(ctx context.Context, now time.Time) (int64, error)
}

// JobRecorder receives maintenance job results.
type JobRecorder interface {
	ObserveRecompute(recomputed, failed int)
	ObserveRetention(deleted int64)
}

type Activities struct {
	Log       *logger.Logger
	Feedback  Coordinator
	Decisions repos.ScoringDecisionRepo
	Metrics   JobRecorder
}

const errTypeRejected = "SignalsRejected"

// RecordFeedback applies one delivered event. Redelivery is safe: the
// coordinator treats a repeated action as a no-op. Input and consistency
// errors are not retried.
func (a *Activities) RecordFeedback(ctx context.Context, ev FeedbackEvent) (FeedbackOutcome, error) {
	out := FeedbackOutcome{Action: ev.Action}
	if a == nil || a.Feedback == nil {
		return out, fmt.Errorf("signalsflow: activities not configured")
	}
	action, ok := types.ParseAction(strings.TrimSpace(ev.Action))
	if !ok {
		return out, rejected(fmt.Errorf("%w: %q", errs.ErrUnknownAction, ev.Action))
	}

	decisionID, err := a.resolveDecision(ctx, ev)
	if err != nil {
		return out, err
	}
	out.DecisionID = decisionID.String()

	res, err := a.Feedback.RecordFeedback(ctx, decisionID, action)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidInput) || errors.Is(err, errs.ErrUnknownDecision) {
			return out, rejected(err)
		}
		return out, err
	}
	out.Previous = string(res.Previous)
	out.Action = string(res.Action)
	out.Applied = res.Applied
	out.Version = res.Version

	if a.Log != nil {
		a.Log.Debug("feedback activity done",
			"decision_id", decisionID,
			"applied", res.Applied,
		)
	}
	return out, nil
}

func (a *Activities) resolveDecision(ctx context.Context, ev FeedbackEvent) (uuid.UUID, error) {
	if s := strings.TrimSpace(ev.DecisionID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, rejected(fmt.Errorf("%w: decision id %q", errs.ErrInvalidInput, s))
		}
		return id, nil
	}
	chunkID, errC := uuid.Parse(strings.TrimSpace(ev.ChunkID))
	userID, errU := uuid.Parse(strings.TrimSpace(ev.UserID))
	if errC != nil || errU != nil {
		return uuid.Nil, rejected(fmt.Errorf("%w: event needs decision_id or chunk_id and user_id", errs.ErrInvalidInput))
	}
	if a.Decisions == nil {
		return uuid.Nil, fmt.Errorf("signalsflow: decision lookup not configured")
	}
	d, err := a.Decisions.GetByChunkAndUser(ctx, nil, chunkID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if d == nil {
		return uuid.Nil, rejected(fmt.Errorf("%w: chunk %s user %s", errs.ErrUnknownDecision, chunkID, userID))
	}
	return d.ID, nil
}

func (a *Activities) RecomputeStale(ctx context.Context, p RecomputeParams) (RecomputeResult, error) {
	if a == nil || a.Feedback == nil {
		return RecomputeResult{}, fmt.Errorf("signalsflow: activities not configured")
	}
	report, err := a.Feedback.RecomputeStale(ctx, p.OlderThan)
	if a.Metrics != nil {
		a.Metrics.ObserveRecompute(report.Recomputed, report.Failed)
	}
	return RecomputeResult{Recomputed: report.Recomputed, Failed: report.Failed}, err
}

func (a *Activities) CleanupRetention(ctx context.Context, now time.Time) (RetentionResult, error) {
	if a == nil || a.Feedback == nil {
		return RetentionResult{}, fmt.Errorf("signalsflow: activities not configured")
	}
	n, err := a.Feedback.CleanupRetention(ctx, now)
	if err != nil {
		return RetentionResult{}, err
	}
	if a.Metrics != nil {
		a.Metrics.ObserveRetention(n)
	}
	return RetentionResult{Deleted: n}, nil
}

func rejected(err error) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), errTypeRejected, err)
}
