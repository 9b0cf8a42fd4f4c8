package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/db"
	"github.com/yungbote/signals-backend/internal/data/repos"
	apphttp "github.com/yungbote/signals-backend/internal/http"
	"github.com/yungbote/signals-backend/internal/modules/signals/policy"
	"github.com/yungbote/signals-backend/internal/observability"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Policy   policy.Policy
	Clients  Clients
	Repos    repos.Repos
	Services Services
	Metrics  *observability.Metrics
	Server   *apphttp.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pol, err := policy.Load(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load scoring policy: %w", err)
	}

	pg, err := db.NewPostgresService(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := pg.DB()
	if cfg.AutoMigrate {
		if err := db.AutoMigrateAll(theDB); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, err
		}
	}

	otelShutdown := observability.InitOTel(context.Background(), log,
		observability.LoadOtelConfig(serviceName, cfg.Environment, cfg.Version))
	metrics := observability.Init(log)

	clients, err := wireClients(context.Background(), cfg, log)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.New(theDB, log)
	svcs, err := wireServices(theDB, log, cfg, pol, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Policy:       pol,
		Clients:      clients,
		Repos:        reposet,
		Services:     svcs,
		Metrics:      metrics,
		Server:       wireHTTP(theDB, log, svcs, metrics),
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: metric collectors, the Temporal worker and
// the maintenance schedules.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		if a.Clients.Locker != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Locker.Client())
		}
	}
	if a.Services.Worker != nil {
		if err := a.Services.Worker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	if a.Services.Dispatcher != nil && a.Cfg.EnsureSchedules {
		if err := a.Services.Dispatcher.EnsureSchedules(ctx, a.Cfg.Temporal.RecomputeCron, a.Cfg.Temporal.RetentionCron); err != nil {
			a.Log.Warn("maintenance schedules not ensured", "error", err)
		}
	}
	return nil
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		errCh <- a.Server.Run(a.Cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
