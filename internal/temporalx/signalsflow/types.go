package signalsflow

import "time"

const (
	FeedbackWorkflowName  = "signals_feedback"
	RecomputeWorkflowName = "signals_centroid_recompute"
	RetentionWorkflowName = "signals_retention_cleanup"

	ActivityRecordFeedback   = "signals_record_feedback"
	ActivityRecomputeStale   = "signals_recompute_stale"
	ActivityCleanupRetention = "signals_cleanup_retention"

	RecomputeWorkflowID = "signals:centroid-recompute"
	RetentionWorkflowID = "signals:retention-cleanup"
)

// FeedbackEvent is one delivered user action. DecisionID wins when set;
// otherwise the decision is resolved from (ChunkID, UserID).
type FeedbackEvent struct {
	DecisionID string `json:"decision_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	ChunkID    string `json:"chunk_id,omitempty"`
	Action     string `json:"action"`
}

type FeedbackOutcome struct {
	DecisionID string `json:"decision_id"`
	Previous   string `json:"previous"`
	Action     string `json:"action"`
	Applied    bool   `json:"applied"`
	Version    int64  `json:"version"`
}

type RecomputeParams struct {
	OlderThan time.Duration `json:"older_than"`
}

type RecomputeResult struct {
	Recomputed int `json:"recomputed"`
	Failed     int `json:"failed"`
}

type RetentionResult struct {
	Deleted int64 `json:"deleted"`
}
