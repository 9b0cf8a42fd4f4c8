package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/signals-backend/internal/http"
	httpH "github.com/yungbote/signals-backend/internal/http/handlers"
	"github.com/yungbote/signals-backend/internal/observability"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

const serviceName = "signals-engine"

func wireHTTP(db *gorm.DB, log *logger.Logger, svcs Services, metrics *observability.Metrics) *apphttp.Server {
	log.Info("Wiring handlers...")
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:           log.With("component", "http"),
		ServiceName:   serviceName,
		Metrics:       metrics,
		SignalHandler: httpH.NewSignalHandler(log, svcs.Signal, svcs.FeedbackSink),
		HealthHandler: httpH.NewHealthHandler(db),
	})
}
