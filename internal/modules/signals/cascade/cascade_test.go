package cascade

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/features"
	"github.com/yungbote/signals-backend/internal/modules/signals/judge"
	"github.com/yungbote/signals-backend/internal/modules/signals/novelty"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

type fixedFeatures struct{ composite float64 }

func (f fixedFeatures) Extract(text string) features.Result {
	return features.Result{
		FrameworkClarity: f.composite,
		InsightDensity:   f.composite,
		Specificity:      f.composite,
		Quality:          f.composite,
		Composite:        f.composite,
		Reasons:          []string{"fixed"},
		WordCount:        len(strings.Fields(text)),
	}
}

type countingJudge struct {
	calls   int
	verdict judge.Verdict
}

func (j *countingJudge) Evaluate(context.Context, uuid.UUID, string) judge.Verdict {
	j.calls++
	return j.verdict
}

type fixedNovelty struct{ a novelty.Assessment }

func (n fixedNovelty) Assess([]float32, [][]float32) novelty.Assessment { return n.a }

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func verdict(overall int) judge.Verdict {
	return judge.Verdict{
		FrameworkClarity: overall, InsightNovelty: overall, TacticalSpecificity: overall,
		ReasoningDepth: overall, Overall: overall, Rationale: "ok",
	}
}

func TestShortChunkIsLengthFiltered(t *testing.T) {
	j := &countingJudge{verdict: verdict(90)}
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.9}, j, nil, logger.Nop())

	out := c.Run(context.Background(), Input{ChunkID: uuid.New(), Text: words(40)})
	assert.Equal(t, types.MethodLengthFilter, out.Method)
	assert.Equal(t, 15.0, out.Score)
	assert.False(t, out.Passed)
	assert.Nil(t, out.Heuristic)
	assert.Nil(t, out.Verdict)
	assert.Zero(t, j.calls)

	d, err := out.Decision(uuid.New(), uuid.New(), "v1")
	require.NoError(t, err)
	assert.Nil(t, d.HeuristicComposite)
	assert.Nil(t, d.JudgeOverall)
}

func TestHighHeuristicNeverCallsJudge(t *testing.T) {
	for _, composite := range []float64{0.52, 0.6, 0.99} {
		j := &countingJudge{verdict: verdict(10)}
		c := New(DefaultThresholds(), fixedFeatures{composite: composite}, j, nil, logger.Nop())
		out := c.Run(context.Background(), Input{ChunkID: uuid.New(), Text: words(300)})

		assert.Equal(t, types.MethodHeuristic, out.Method)
		assert.True(t, out.Passed)
		assert.Zero(t, out.JudgeCalls)
		assert.Zero(t, j.calls)
	}
}

func TestRealExtractorHeavyChunkPasses(t *testing.T) {
	text := "We call this the Leverage Loop. The framework is simple, and the model behind it rests on one principle. " +
		"Compare doing the work yourself versus hiring help, and choose leverage rather than effort. " +
		"Most people think effort compounds, but it is counterintuitive because leverage compounds faster, " +
		"therefore the problem is how you spend attention. "
	for len(strings.Fields(text)) < 300 {
		text += "Teams ship small improvements to customers every single week and learn quickly. "
	}
	j := &countingJudge{verdict: verdict(10)}
	c := New(DefaultThresholds(), nil, j, nil, logger.Nop())

	out := c.Run(context.Background(), Input{ChunkID: uuid.New(), Text: text})
	assert.Equal(t, types.MethodHeuristic, out.Method)
	assert.True(t, out.Passed)
	assert.GreaterOrEqual(t, out.Score, 52.0)
	assert.Zero(t, j.calls)
}

func TestLowHeuristicFails(t *testing.T) {
	j := &countingJudge{verdict: verdict(90)}
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.28}, j, nil, logger.Nop())
	out := c.Run(context.Background(), Input{ChunkID: uuid.New(), Text: words(100)})
	assert.Equal(t, types.MethodHeuristic, out.Method)
	assert.False(t, out.Passed)
	assert.Equal(t, 28.0, out.Score)
	assert.Zero(t, j.calls)
}

func TestBorderlineGoesToJudge(t *testing.T) {
	j := &countingJudge{verdict: verdict(55)}
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.40}, j, nil, logger.Nop())

	out := c.Run(context.Background(), Input{ChunkID: uuid.New(), Text: words(200)})
	assert.Equal(t, types.MethodLLM, out.Method)
	assert.True(t, out.Passed)
	assert.Equal(t, 55.0, out.Score)
	assert.Equal(t, 1, out.JudgeCalls)
	assert.Equal(t, int64(1), c.JudgeCalls())
	require.NotNil(t, out.Heuristic)
	assert.Equal(t, 0.40, out.Heuristic.Composite)

	d, err := out.Decision(uuid.New(), uuid.New(), "v1")
	require.NoError(t, err)
	require.NotNil(t, d.JudgeOverall)
	assert.Equal(t, 55, *d.JudgeOverall)
	assert.Equal(t, 0.40, *d.HeuristicComposite)
}

func TestJudgePassThresholdIsInclusive(t *testing.T) {
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.40}, &countingJudge{verdict: verdict(48)}, nil, logger.Nop())
	assert.True(t, c.Run(context.Background(), Input{Text: words(100)}).Passed)

	c = New(DefaultThresholds(), fixedFeatures{composite: 0.40}, &countingJudge{verdict: verdict(47)}, nil, logger.Nop())
	assert.False(t, c.Run(context.Background(), Input{Text: words(100)}).Passed)
}

func TestJudgeFallbackStillTerminates(t *testing.T) {
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.40}, &countingJudge{verdict: judge.Neutral()}, nil, logger.Nop())
	out := c.Run(context.Background(), Input{ChunkID: uuid.New(), Text: words(100)})
	assert.Equal(t, types.MethodLLM, out.Method)
	assert.Equal(t, 50.0, out.Score)
	require.NotNil(t, out.Verdict)
	assert.True(t, out.Verdict.Fallback)
	assert.True(t, out.Passed)

	d, err := out.Decision(uuid.New(), uuid.New(), "v1")
	require.NoError(t, err)
	assert.True(t, *d.JudgeFallback)
}

func TestNilJudgeUsesNeutral(t *testing.T) {
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.40}, nil, nil, logger.Nop())
	out := c.Run(context.Background(), Input{Text: words(100)})
	assert.Equal(t, 50.0, out.Score)
}

func TestNoveltyAdjustsScoreNotPass(t *testing.T) {
	nov := fixedNovelty{a: novelty.Assessment{Adjustment: -10, ClusterSize: 4, Applied: true}}
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.55}, nil, nov, logger.Nop())
	out := c.Run(context.Background(), Input{
		Text:      words(100),
		Embedding: []float32{1, 0},
		History:   [][]float32{{1, 0}},
	})
	assert.True(t, out.Passed)
	assert.Equal(t, 45.0, out.Score)
	require.NotNil(t, out.Novelty)
	assert.Equal(t, 4, out.Novelty.ClusterSize)

	// No history, no novelty stage work.
	out = c.Run(context.Background(), Input{Text: words(100), Embedding: []float32{1, 0}})
	assert.Nil(t, out.Novelty)
	assert.Equal(t, 55.0, out.Score)
}

func TestNoveltyClampsScore(t *testing.T) {
	nov := fixedNovelty{a: novelty.Assessment{Adjustment: 5, Applied: true}}
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.99}, nil, nov, logger.Nop())
	out := c.Run(context.Background(), Input{Text: words(100), Embedding: []float32{1}, History: [][]float32{{0.5}}})
	assert.Equal(t, 100.0, out.Score)
}

func TestTransitionsArePure(t *testing.T) {
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.40}, nil, nil, logger.Nop())

	s := c.lengthFilter(state{stage: StageLengthFilter, in: Input{Text: words(80)}})
	assert.Equal(t, StageHeuristic, s.stage)
	assert.Equal(t, 80, s.words)

	s = c.heuristicStage(s)
	assert.Equal(t, StageJudge, s.stage)
	assert.Equal(t, 40.0, s.score)

	p := c.heuristicPass(state{stage: StageHeuristicPass, score: 60})
	assert.True(t, p.passed)
	assert.Equal(t, StageNovelty, p.stage)

	f := c.heuristicFail(state{stage: StageHeuristicFail, score: 10, passed: true})
	assert.False(t, f.passed)
	assert.Equal(t, StageNovelty, f.stage)

	d := c.noveltyStage(state{stage: StageNovelty, score: 33})
	assert.Equal(t, StageDone, d.stage)
	assert.Equal(t, 33.0, d.score)
}

func TestThresholdsAreConfiguration(t *testing.T) {
	th := DefaultThresholds()
	th.High = 40
	c := New(th, fixedFeatures{composite: 0.40}, &countingJudge{verdict: verdict(0)}, nil, logger.Nop())
	out := c.Run(context.Background(), Input{Text: words(100)})
	assert.Equal(t, types.MethodHeuristic, out.Method)
	assert.True(t, out.Passed)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())
	th := DefaultThresholds()
	th.Low = 60
	assert.Error(t, th.Validate())
	th = DefaultThresholds()
	th.JudgePass = 120
	assert.Error(t, th.Validate())
}

func TestRunConcurrentIsSafe(t *testing.T) {
	c := New(DefaultThresholds(), fixedFeatures{composite: 0.40}, nil, nil, logger.Nop())
	done := make(chan Outcome, 16)
	for i := 0; i < 16; i++ {
		go func() { done <- c.Run(context.Background(), Input{Text: words(100)}) }()
	}
	for i := 0; i < 16; i++ {
		select {
		case out := <-done:
			assert.Equal(t, types.MethodLLM, out.Method)
		case <-time.After(5 * time.Second):
			t.Fatal("cascade run did not finish")
		}
	}
	assert.Equal(t, int64(16), c.JudgeCalls())
}
