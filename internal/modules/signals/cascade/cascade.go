package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/features"
	"github.com/yungbote/signals-backend/internal/modules/signals/judge"
	"github.com/yungbote/signals-backend/internal/modules/signals/novelty"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/pkg/pointers"
)

type Stage string

const (
	StageLengthFilter  Stage = "length-filter"
	StageHeuristic     Stage = "heuristic"
	StageHeuristicPass Stage = "heuristic-pass"
	StageHeuristicFail Stage = "heuristic-fail"
	StageJudge         Stage = "judge"
	StageNovelty       Stage = "novelty"
	StageDone          Stage = "done"
)

type Features interface {
	Extract(text string) features.Result
}

type Judge interface {
	Evaluate(ctx context.Context, chunkID uuid.UUID, text string) judge.Verdict
}

type Novelty interface {
	Assess(embedding []float32, history [][]float32) novelty.Assessment
}

// Input is everything one run needs. History may be empty, in which case the
// novelty stage is a no-op.
type Input struct {
	ChunkID   uuid.UUID
	Text      string
	Embedding []float32
	History   [][]float32
}

// Step records what one state did.
type Step struct {
	Stage Stage   `json:"stage"`
	Score float64 `json:"score"`
	Note  string  `json:"note,omitempty"`
}

type state struct {
	stage     Stage
	in        Input
	words     int
	score     float64
	method    types.Method
	passed    bool
	heuristic *features.Result
	verdict   *judge.Verdict
	novelty   *novelty.Assessment
	trace     []Step
}

func (s state) record(note string) state {
	s.trace = append(s.trace, Step{Stage: s.stage, Score: s.score, Note: note})
	return s
}

// Outcome is a terminal cascade result.
type Outcome struct {
	Method     types.Method
	Score      float64
	Passed     bool
	Words      int
	Heuristic  *features.Result
	Verdict    *judge.Verdict
	Novelty    *novelty.Assessment
	JudgeCalls int
	Trace      []Step
}

type Cascade struct {
	th      Thresholds
	feat    Features
	judge   Judge
	novelty Novelty
	log     *logger.Logger

	judgeCalls atomic.Int64
}

func New(th Thresholds, feat Features, j Judge, nov Novelty, baseLog *logger.Logger) *Cascade {
	if feat == nil {
		feat = features.New(features.DefaultWeights())
	}
	return &Cascade{
		th:      th,
		feat:    feat,
		judge:   j,
		novelty: nov,
		log:     baseLog.With("service", "ScoringCascade"),
	}
}

func (c *Cascade) Thresholds() Thresholds { return c.th }

// JudgeCalls is the number of judge invocations since construction.
func (c *Cascade) JudgeCalls() int64 { return c.judgeCalls.Load() }

// Run drives the state machine to done. It always returns a terminal outcome;
// judge failures arrive here already degraded to the neutral verdict.
func (c *Cascade) Run(ctx context.Context, in Input) Outcome {
	ctx, span := otel.Tracer("signals/cascade").Start(ctx, "cascade.run")
	defer span.End()

	s := state{stage: StageLengthFilter, in: in}
	judged := 0
	for s.stage != StageDone {
		switch s.stage {
		case StageLengthFilter:
			s = c.lengthFilter(s)
		case StageHeuristic:
			s = c.heuristicStage(s)
		case StageHeuristicPass:
			s = c.heuristicPass(s)
		case StageHeuristicFail:
			s = c.heuristicFail(s)
		case StageJudge:
			judged++
			c.judgeCalls.Add(1)
			s = c.judgeStage(ctx, s)
		case StageNovelty:
			s = c.noveltyStage(s)
		default:
			c.log.Error("cascade reached unknown state", "stage", s.stage, "chunk_id", in.ChunkID)
			s.stage = StageDone
		}
	}

	span.SetAttributes(
		attribute.String("cascade.method", string(s.method)),
		attribute.Float64("cascade.score", s.score),
		attribute.Bool("cascade.passed", s.passed),
		attribute.Int("cascade.judge_calls", judged),
	)
	c.log.Debug("cascade done",
		"chunk_id", in.ChunkID,
		"method", s.method,
		"score", s.score,
		"passed", s.passed,
	)
	return Outcome{
		Method:     s.method,
		Score:      s.score,
		Passed:     s.passed,
		Words:      s.words,
		Heuristic:  s.heuristic,
		Verdict:    s.verdict,
		Novelty:    s.novelty,
		JudgeCalls: judged,
		Trace:      s.trace,
	}
}

func (c *Cascade) lengthFilter(s state) state {
	s.words = len(strings.Fields(s.in.Text))
	if s.words < c.th.MinWords {
		s.method = types.MethodLengthFilter
		s.score = c.th.LengthFilterScore
		s.passed = false
		s = s.record(fmt.Sprintf("%d words < %d", s.words, c.th.MinWords))
		s.stage = StageDone
		return s
	}
	s = s.record(fmt.Sprintf("%d words", s.words))
	s.stage = StageHeuristic
	return s
}

func (c *Cascade) heuristicStage(s state) state {
	res := c.feat.Extract(s.in.Text)
	s.heuristic = &res
	s.score = res.Score()
	s.method = types.MethodHeuristic
	s = s.record(fmt.Sprintf("composite %.3f", res.Composite))
	switch {
	case s.score >= c.th.High:
		s.stage = StageHeuristicPass
	case s.score <= c.th.Low:
		s.stage = StageHeuristicFail
	default:
		s.stage = StageJudge
	}
	return s
}

func (c *Cascade) heuristicPass(s state) state {
	s.passed = true
	s = s.record(fmt.Sprintf(">= %.1f", c.th.High))
	s.stage = StageNovelty
	return s
}

func (c *Cascade) heuristicFail(s state) state {
	s.passed = false
	s = s.record(fmt.Sprintf("<= %.1f", c.th.Low))
	s.stage = StageNovelty
	return s
}

func (c *Cascade) judgeStage(ctx context.Context, s state) state {
	v := judge.Neutral()
	if c.judge != nil {
		v = c.judge.Evaluate(ctx, s.in.ChunkID, s.in.Text)
	}
	s.verdict = &v
	s.method = types.MethodLLM
	s.score = float64(v.Overall)
	s.passed = s.score >= c.th.JudgePass
	note := "verdict"
	if v.Fallback {
		note = "fallback " + v.ErrorClass
	}
	s = s.record(note)
	s.stage = StageNovelty
	return s
}

// noveltyStage adjusts the score but never the pass flag.
func (c *Cascade) noveltyStage(s state) state {
	if c.novelty == nil || len(s.in.History) == 0 || len(s.in.Embedding) == 0 {
		s.stage = StageDone
		return s
	}
	a := c.novelty.Assess(s.in.Embedding, s.in.History)
	if a.Applied {
		s.novelty = &a
		s.score = clampScore(s.score + a.Adjustment)
		s = s.record(fmt.Sprintf("cluster %d adj %+.2f", a.ClusterSize, a.Adjustment))
	}
	s.stage = StageDone
	return s
}

func clampScore(v float64) float64 {
	v = math.Round(v*100) / 100
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Decision converts the outcome into the row persisted for (chunkID, userID).
func (o Outcome) Decision(chunkID, userID uuid.UUID, policyVersion string) (*types.ScoringDecision, error) {
	d := &types.ScoringDecision{
		ChunkID:       chunkID,
		UserID:        userID,
		Score:         o.Score,
		Method:        o.Method,
		Passed:        o.Passed,
		PolicyVersion: policyVersion,
		UserAction:    types.ActionUnset,
	}
	if h := o.Heuristic; h != nil {
		d.FrameworkClarity = pointers.Float64(h.FrameworkClarity)
		d.InsightDensity = pointers.Float64(h.InsightDensity)
		d.Specificity = pointers.Float64(h.Specificity)
		d.Quality = pointers.Float64(h.Quality)
		d.HeuristicComposite = pointers.Float64(h.Composite)
		reasons := h.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		raw, err := json.Marshal(reasons)
		if err != nil {
			return nil, fmt.Errorf("encode heuristic reasons: %w", err)
		}
		d.HeuristicReasons = raw
	}
	if v := o.Verdict; v != nil {
		d.JudgeFrameworkClarity = pointers.Int(v.FrameworkClarity)
		d.JudgeInsightNovelty = pointers.Int(v.InsightNovelty)
		d.JudgeTacticalSpecificity = pointers.Int(v.TacticalSpecificity)
		d.JudgeReasoningDepth = pointers.Int(v.ReasoningDepth)
		d.JudgeOverall = pointers.Int(v.Overall)
		d.JudgeRationale = pointers.String(v.Rationale)
		d.JudgeCostUSD = pointers.Float64(v.CostUSD)
		d.JudgeFallback = pointers.Ptr(v.Fallback)
	}
	if n := o.Novelty; n != nil {
		d.NoveltyAdjustment = pointers.Float64(n.Adjustment)
		d.NoveltyClusterSize = pointers.Int(n.ClusterSize)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
