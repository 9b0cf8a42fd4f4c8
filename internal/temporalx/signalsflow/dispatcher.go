package signalsflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// Dispatcher starts signals workflows with deterministic ids, so a
// redelivered event attaches to the run already in flight.
type Dispatcher struct {
	tc        temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

func NewDispatcher(tc temporalsdkclient.Client, taskQueue string, baseLog *logger.Logger) *Dispatcher {
	return &Dispatcher{tc: tc, taskQueue: taskQueue, log: baseLog.With("service", "SignalsDispatcher")}
}

func FeedbackWorkflowID(ev FeedbackEvent) string {
	key := strings.TrimSpace(ev.DecisionID)
	if key == "" {
		key = strings.TrimSpace(ev.ChunkID) + "/" + strings.TrimSpace(ev.UserID)
	}
	return "feedback:" + key + ":" + strings.TrimSpace(ev.Action)
}

// DispatchFeedback enqueues ev and returns its workflow id.
func (d *Dispatcher) DispatchFeedback(ctx context.Context, ev FeedbackEvent) (string, error) {
	if d == nil || d.tc == nil {
		return "", fmt.Errorf("temporal client is not configured")
	}
	id := FeedbackWorkflowID(ev)
	_, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                d.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, FeedbackWorkflowName, ev)
	if err != nil && !alreadyStarted(err) {
		return "", fmt.Errorf("start feedback workflow %s: %w", id, err)
	}
	d.log.Debug("feedback dispatched", "workflow_id", id)
	return id, nil
}

// EnsureSchedules starts the cron-driven maintenance workflows. Empty
// schedules are skipped.
func (d *Dispatcher) EnsureSchedules(ctx context.Context, recomputeCron, retentionCron string) error {
	if d == nil || d.tc == nil {
		return fmt.Errorf("temporal client is not configured")
	}
	type sched struct {
		id, cron, workflow string
		args               []interface{}
	}
	for _, s := range []sched{
		{RecomputeWorkflowID, recomputeCron, RecomputeWorkflowName, []interface{}{RecomputeParams{}}},
		{RetentionWorkflowID, retentionCron, RetentionWorkflowName, nil},
	} {
		if strings.TrimSpace(s.cron) == "" {
			continue
		}
		_, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
			ID:                       s.id,
			TaskQueue:                d.taskQueue,
			CronSchedule:             s.cron,
			WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		}, s.workflow, s.args...)
		if err != nil && !alreadyStarted(err) {
			return fmt.Errorf("start %s: %w", s.id, err)
		}
		d.log.Info("maintenance schedule ensured", "workflow_id", s.id, "cron", s.cron)
	}
	return nil
}

func alreadyStarted(err error) bool {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &started)
}

// Inline applies feedback events in the caller's goroutine. It stands in
// for Dispatcher when Temporal is not configured.
type Inline struct {
	Acts *Activities
}

func (i Inline) DispatchFeedback(ctx context.Context, ev FeedbackEvent) (string, error) {
	out, err := i.Acts.RecordFeedback(ctx, ev)
	if err != nil {
		return "", err
	}
	return out.DecisionID, nil
}
