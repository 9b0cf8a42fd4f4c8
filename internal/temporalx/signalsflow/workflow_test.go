package signalsflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/repos"
	"github.com/yungbote/signals-backend/internal/data/repos/testutil"
	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/centroid"
	"github.com/yungbote/signals-backend/internal/modules/signals/feedback"
	"github.com/yungbote/signals-backend/internal/modules/signals/policy"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
)

type jobCounter struct {
	recomputed int
	deleted    int64
}

func (j *jobCounter) ObserveRecompute(recomputed, _ int) { j.recomputed += recomputed }
func (j *jobCounter) ObserveRetention(deleted int64)     { j.deleted += deleted }

type harness struct {
	gdb   *gorm.DB
	store *centroid.Store
	acts  *Activities
	jobs  *jobCounter
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(gdb, log)
	store := centroid.NewStore(gdb, r.Centroids, r.Decisions, nil, centroid.Config{Dim: 2, SkipRate: 0.1}, log)
	coord := feedback.NewCoordinator(store, r.Decisions, r.Chunks, policy.DefaultPolicy().Retention, nil, log)
	jobs := &jobCounter{}
	return harness{
		gdb:   gdb,
		store: store,
		jobs:  jobs,
		acts:  &Activities{Log: log, Feedback: coord, Decisions: r.Decisions, Metrics: jobs},
	}
}

func (h harness) seed(t *testing.T, userID uuid.UUID, vec []float32) *types.ScoringDecision {
	t.Helper()
	ctx := context.Background()
	chunk := testutil.SeedChunk(t, ctx, h.gdb, testutil.Words(100), vec)
	return testutil.SeedDecision(t, ctx, h.gdb, chunk.ID, userID, types.ActionUnset)
}

func (h harness) workflowEnv() *testsuite.TestWorkflowEnvironment {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(h.acts.RecordFeedback, activity.RegisterOptions{Name: ActivityRecordFeedback})
	env.RegisterActivityWithOptions(h.acts.RecomputeStale, activity.RegisterOptions{Name: ActivityRecomputeStale})
	env.RegisterActivityWithOptions(h.acts.CleanupRetention, activity.RegisterOptions{Name: ActivityCleanupRetention})
	return env
}

func TestFeedbackWorkflowAppliesOnce(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	d := h.seed(t, userID, []float32{1, 0})
	ev := FeedbackEvent{DecisionID: d.ID.String(), Action: "saved"}

	env := h.workflowEnv()
	env.ExecuteWorkflow(FeedbackWorkflow, ev)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out FeedbackOutcome
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.True(t, out.Applied)
	assert.Equal(t, "unset", out.Previous)

	// Redelivery of the same event.
	env = h.workflowEnv()
	env.ExecuteWorkflow(FeedbackWorkflow, ev)
	require.NoError(t, env.GetWorkflowError())
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.False(t, out.Applied)

	st, err := h.store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Saved)
	assert.Equal(t, []float32{1, 0}, st.Vector)
}

func TestFeedbackWorkflowResolvesByChunkAndUser(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	d := h.seed(t, userID, []float32{0, 1})

	env := h.workflowEnv()
	env.ExecuteWorkflow(FeedbackWorkflow, FeedbackEvent{
		ChunkID: d.ChunkID.String(),
		UserID:  userID.String(),
		Action:  "skipped",
	})
	require.NoError(t, env.GetWorkflowError())
	var out FeedbackOutcome
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, d.ID.String(), out.DecisionID)
	assert.True(t, out.Applied)
}

func TestFeedbackWorkflowRejectsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	cases := []FeedbackEvent{
		{DecisionID: uuid.NewString(), Action: "saved"},
		{DecisionID: uuid.NewString(), Action: "liked"},
		{DecisionID: "not-a-uuid", Action: "saved"},
		{Action: "saved"},
	}
	for _, ev := range cases {
		env := h.workflowEnv()
		env.ExecuteWorkflow(FeedbackWorkflow, ev)
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err, "event %+v", ev)
		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr), "event %+v", ev)
		assert.Equal(t, errTypeRejected, appErr.Type())
		assert.True(t, appErr.NonRetryable())
	}
}

func TestRecomputeWorkflow(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	d := h.seed(t, userID, []float32{1, 0})
	_, err := h.acts.Feedback.RecordFeedback(context.Background(), d.ID, types.ActionSaved)
	require.NoError(t, err)

	env := h.workflowEnv()
	env.ExecuteWorkflow(CentroidRecomputeWorkflow, RecomputeParams{OlderThan: time.Millisecond})
	require.NoError(t, env.GetWorkflowError())
	var out RecomputeResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 1, out.Recomputed)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, 1, h.jobs.recomputed)
}

func TestRetentionWorkflowKeepsFreshDecisions(t *testing.T) {
	h := newHarness(t)
	h.seed(t, uuid.New(), []float32{1, 0})

	env := h.workflowEnv()
	env.ExecuteWorkflow(RetentionCleanupWorkflow)
	require.NoError(t, env.GetWorkflowError())
	var out RetentionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.EqualValues(t, 0, out.Deleted)
}

func TestRecordFeedbackActivity(t *testing.T) {
	h := newHarness(t)
	d := h.seed(t, uuid.New(), []float32{1, 0})

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(h.acts)
	val, err := env.ExecuteActivity(h.acts.RecordFeedback, FeedbackEvent{DecisionID: d.ID.String(), Action: "saved"})
	require.NoError(t, err)
	var out FeedbackOutcome
	require.NoError(t, val.Get(&out))
	assert.True(t, out.Applied)
	assert.EqualValues(t, 1, out.Version)
}

func TestFeedbackWorkflowID(t *testing.T) {
	assert.Equal(t, "feedback:abc:saved", FeedbackWorkflowID(FeedbackEvent{DecisionID: "abc", Action: "saved"}))
	assert.Equal(t, "feedback:c/u:skipped", FeedbackWorkflowID(FeedbackEvent{ChunkID: "c", UserID: "u", Action: "skipped"}))
}

func TestInlineDispatch(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	d := h.seed(t, userID, []float32{1, 0})

	id, err := Inline{Acts: h.acts}.DispatchFeedback(context.Background(), FeedbackEvent{
		ChunkID: d.ChunkID.String(),
		UserID:  userID.String(),
		Action:  "saved",
	})
	require.NoError(t, err)
	assert.Equal(t, d.ID.String(), id)

	_, err = Inline{Acts: h.acts}.DispatchFeedback(context.Background(), FeedbackEvent{DecisionID: uuid.NewString(), Action: "saved"})
	assert.ErrorIs(t, err, errs.ErrUnknownDecision)
}
