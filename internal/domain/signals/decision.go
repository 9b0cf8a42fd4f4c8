package signals

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Method names the cascade stage that produced a decision.
type Method string

const (
	MethodLengthFilter Method = "length-filter"
	MethodHeuristic    Method = "heuristic"
	MethodLLM          Method = "llm"
)

func (m Method) Valid() bool {
	switch m {
	case MethodLengthFilter, MethodHeuristic, MethodLLM:
		return true
	}
	return false
}

// Action is the user's feedback on a surfaced signal.
type Action string

const (
	ActionUnset   Action = "unset"
	ActionSaved   Action = "saved"
	ActionSkipped Action = "skipped"
)

func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionUnset, ActionSaved, ActionSkipped:
		return Action(s), true
	case "":
		return ActionUnset, true
	}
	return "", false
}

// ScoringDecision (a "signal") is the cascade's verdict for one chunk and one
// user. Only the action columns change after creation.
type ScoringDecision struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChunkID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_scoring_decision_chunk_user,priority:1" json:"chunk_id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_scoring_decision_chunk_user,priority:2;index:idx_scoring_decision_user_created,priority:1" json:"user_id"`

	Score         float64 `gorm:"column:score;not null" json:"score"`
	Method        Method  `gorm:"column:method;type:text;not null;index" json:"method"`
	Passed        bool    `gorm:"column:passed;not null;index" json:"passed"`
	PolicyVersion string  `gorm:"column:policy_version;type:text" json:"policy_version,omitempty"`

	FrameworkClarity   *float64       `gorm:"column:framework_clarity" json:"framework_clarity,omitempty"`
	InsightDensity     *float64       `gorm:"column:insight_density" json:"insight_density,omitempty"`
	Specificity        *float64       `gorm:"column:specificity" json:"specificity,omitempty"`
	Quality            *float64       `gorm:"column:quality" json:"quality,omitempty"`
	HeuristicComposite *float64       `gorm:"column:heuristic_composite" json:"heuristic_composite,omitempty"`
	HeuristicReasons   datatypes.JSON `gorm:"column:heuristic_reasons;type:jsonb" json:"heuristic_reasons,omitempty"`

	JudgeFrameworkClarity    *int     `gorm:"column:judge_framework_clarity" json:"judge_framework_clarity,omitempty"`
	JudgeInsightNovelty      *int     `gorm:"column:judge_insight_novelty" json:"judge_insight_novelty,omitempty"`
	JudgeTacticalSpecificity *int     `gorm:"column:judge_tactical_specificity" json:"judge_tactical_specificity,omitempty"`
	JudgeReasoningDepth      *int     `gorm:"column:judge_reasoning_depth" json:"judge_reasoning_depth,omitempty"`
	JudgeOverall             *int     `gorm:"column:judge_overall" json:"judge_overall,omitempty"`
	JudgeRationale           *string  `gorm:"column:judge_rationale;type:text" json:"judge_rationale,omitempty"`
	JudgeCostUSD             *float64 `gorm:"column:judge_cost_usd" json:"judge_cost_usd,omitempty"`
	JudgeFallback            *bool    `gorm:"column:judge_fallback" json:"judge_fallback,omitempty"`

	NoveltyAdjustment  *float64 `gorm:"column:novelty_adjustment" json:"novelty_adjustment,omitempty"`
	NoveltyClusterSize *int     `gorm:"column:novelty_cluster_size" json:"novelty_cluster_size,omitempty"`

	UserAction Action     `gorm:"column:user_action;type:text;not null;default:'unset';index" json:"user_action"`
	ActionAt   *time.Time `gorm:"column:action_at;index" json:"action_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_scoring_decision_user_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ScoringDecision) TableName() string { return "scoring_decision" }

func (d *ScoringDecision) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UserAction == "" {
		d.UserAction = ActionUnset
	}
	return d.Validate()
}

func (d *ScoringDecision) hasHeuristic() bool {
	return d.HeuristicComposite != nil || d.FrameworkClarity != nil || d.InsightDensity != nil ||
		d.Specificity != nil || d.Quality != nil
}

func (d *ScoringDecision) hasJudge() bool {
	return d.JudgeOverall != nil && d.JudgeFrameworkClarity != nil && d.JudgeInsightNovelty != nil &&
		d.JudgeTacticalSpecificity != nil && d.JudgeReasoningDepth != nil
}

// Validate checks that the populated diagnostics agree with Method.
func (d *ScoringDecision) Validate() error {
	if !d.Method.Valid() {
		return fmt.Errorf("scoring decision: unknown method %q", d.Method)
	}
	if d.Score < 0 || d.Score > 100 {
		return fmt.Errorf("scoring decision: score %.2f out of range", d.Score)
	}
	switch d.Method {
	case MethodLengthFilter:
		if d.hasHeuristic() || d.JudgeOverall != nil || d.NoveltyAdjustment != nil {
			return fmt.Errorf("scoring decision: length-filter carries stage data")
		}
	case MethodHeuristic:
		if d.HeuristicComposite == nil {
			return fmt.Errorf("scoring decision: heuristic method without heuristic scores")
		}
		if d.JudgeOverall != nil {
			return fmt.Errorf("scoring decision: heuristic method carries judge scores")
		}
	case MethodLLM:
		if !d.hasJudge() {
			return fmt.Errorf("scoring decision: llm method without judge buckets")
		}
	}
	return nil
}

// Reasons decodes the heuristic reason strings.
func (d *ScoringDecision) Reasons() []string {
	if len(d.HeuristicReasons) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(d.HeuristicReasons, &out); err != nil {
		return nil
	}
	return out
}
