package temporalworker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/temporalx"
	"github.com/yungbote/signals-backend/internal/temporalx/signalsflow"
)

type Runner struct {
	log  *logger.Logger
	cfg  temporalx.Config
	tc   temporalsdkclient.Client
	acts *signalsflow.Activities
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, acts *signalsflow.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if acts == nil || acts.Feedback == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{log: log, cfg: cfg, tc: tc, acts: acts}, nil
}

// Start polls the task queue until ctx is done. Transient start failures
// are retried until WorkerStartMaxWait elapses.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	deadline := time.Now().Add(cfg.WorkerStartMaxWait)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		if !temporalx.Retryable(startErr) || time.Now().After(deadline) {
			return fmt.Errorf("start worker on %s/%s: %w", cfg.Namespace, cfg.TaskQueue, startErr)
		}

		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "attempt", attempt, "error", startErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(temporalx.ClampBackoff(cfg.DialBackoff, cfg.DialBackoffMax, attempt)):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := max(r.cfg.WorkerConcurrency, 1)
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	Register(w, r.acts)
	return w
}

// Register binds the signals workflows and activities to w under their
// stable names.
func Register(w worker.Registry, acts *signalsflow.Activities) {
	w.RegisterWorkflowWithOptions(signalsflow.FeedbackWorkflow, workflow.RegisterOptions{Name: signalsflow.FeedbackWorkflowName})
	w.RegisterWorkflowWithOptions(signalsflow.CentroidRecomputeWorkflow, workflow.RegisterOptions{Name: signalsflow.RecomputeWorkflowName})
	w.RegisterWorkflowWithOptions(signalsflow.RetentionCleanupWorkflow, workflow.RegisterOptions{Name: signalsflow.RetentionWorkflowName})

	w.RegisterActivityWithOptions(acts.RecordFeedback, activity.RegisterOptions{Name: signalsflow.ActivityRecordFeedback})
	w.RegisterActivityWithOptions(acts.RecomputeStale, activity.RegisterOptions{Name: signalsflow.ActivityRecomputeStale})
	w.RegisterActivityWithOptions(acts.CleanupRetention, activity.RegisterOptions{Name: signalsflow.ActivityCleanupRetention})
}
