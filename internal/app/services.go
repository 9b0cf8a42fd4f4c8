package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/repos"
	httpH "github.com/yungbote/signals-backend/internal/http/handlers"
	"github.com/yungbote/signals-backend/internal/modules/signals/cascade"
	"github.com/yungbote/signals-backend/internal/modules/signals/centroid"
	"github.com/yungbote/signals-backend/internal/modules/signals/features"
	"github.com/yungbote/signals-backend/internal/modules/signals/feedback"
	"github.com/yungbote/signals-backend/internal/modules/signals/judge"
	"github.com/yungbote/signals-backend/internal/modules/signals/novelty"
	"github.com/yungbote/signals-backend/internal/modules/signals/policy"
	"github.com/yungbote/signals-backend/internal/modules/signals/ranker"
	"github.com/yungbote/signals-backend/internal/observability"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/services"
	"github.com/yungbote/signals-backend/internal/temporalx/signalsflow"
	"github.com/yungbote/signals-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Judge    *judge.Adapter
	Cascade  *cascade.Cascade
	Centroid *centroid.Store
	Ranker   *ranker.Ranker
	Feedback *feedback.Coordinator
	Signal   services.SignalService

	Activities   *signalsflow.Activities
	Dispatcher   *signalsflow.Dispatcher
	FeedbackSink httpH.FeedbackSink
	Worker       *temporalworker.Runner
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	pol policy.Policy,
	reposet repos.Repos,
	clients Clients,
	metrics *observability.Metrics,
) (Services, error) {
	log.Info("Wiring services...", "policy_version", pol.Version)

	var (
		judgeAdapter *judge.Adapter
		cascadeJudge cascade.Judge
		embedder     services.Embedder
		locker       centroid.Locker
	)
	if clients.OpenAI != nil {
		judgeAdapter = judge.NewAdapter(clients.OpenAI, pol.Judge, metrics, log)
		cascadeJudge = judgeAdapter
		embedder = clients.OpenAI
	}
	if clients.Locker != nil {
		locker = clients.Locker
	}

	casc := cascade.New(
		pol.Cascade,
		features.New(pol.Features),
		cascadeJudge,
		novelty.NewDetector(pol.Novelty),
		log,
	)
	store := centroid.NewStore(db, reposet.Centroids, reposet.Decisions, locker, pol.Centroid, log)
	rank := ranker.New(pol.Ranker, store, log)
	coord := feedback.NewCoordinator(store, reposet.Decisions, reposet.Chunks, pol.Retention, metrics, log)

	signal := services.NewSignalService(db, log, services.SignalDeps{
		Repos:            reposet,
		Cascade:          casc,
		Centroid:         store,
		Ranker:           rank,
		Feedback:         coord,
		Embedder:         embedder,
		Recorder:         metrics,
		Policy:           pol,
		BatchConcurrency: cfg.BatchConcurrency,
	})

	acts := &signalsflow.Activities{
		Log:       log.With("service", "SignalsActivities"),
		Feedback:  coord,
		Decisions: reposet.Decisions,
		Metrics:   metrics,
	}

	out := Services{
		Judge:        judgeAdapter,
		Cascade:      casc,
		Centroid:     store,
		Ranker:       rank,
		Feedback:     coord,
		Signal:       signal,
		Activities:   acts,
		FeedbackSink: signalsflow.Inline{Acts: acts},
	}

	if clients.Temporal != nil {
		out.Dispatcher = signalsflow.NewDispatcher(clients.Temporal, cfg.Temporal.TaskQueue, log)
		out.FeedbackSink = out.Dispatcher
		if cfg.RunWorker {
			w, err := temporalworker.NewRunner(log, cfg.Temporal, clients.Temporal, acts)
			if err != nil {
				return Services{}, err
			}
			out.Worker = w
		}
	}
	return out, nil
}
