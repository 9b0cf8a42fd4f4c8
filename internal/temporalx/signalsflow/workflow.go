package signalsflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

func activityOptions(timeout time.Duration, attempts int32) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        attempts,
			NonRetryableErrorTypes: []string{errTypeRejected},
		},
	}
}

func FeedbackWorkflow(ctx workflow.Context, ev FeedbackEvent) (FeedbackOutcome, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(time.Minute, 10))
	var out FeedbackOutcome
	err := workflow.ExecuteActivity(ctx, ActivityRecordFeedback, ev).Get(ctx, &out)
	return out, err
}

func CentroidRecomputeWorkflow(ctx workflow.Context, p RecomputeParams) (RecomputeResult, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(2*time.Hour, 3))
	var out RecomputeResult
	err := workflow.ExecuteActivity(ctx, ActivityRecomputeStale, p).Get(ctx, &out)
	return out, err
}

func RetentionCleanupWorkflow(ctx workflow.Context) (RetentionResult, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(30*time.Minute, 3))
	var out RetentionResult
	err := workflow.ExecuteActivity(ctx, ActivityCleanupRetention, workflow.Now(ctx)).Get(ctx, &out)
	return out, err
}
