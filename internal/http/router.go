package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/signals-backend/internal/http/handlers"
	httpMW "github.com/yungbote/signals-backend/internal/http/middleware"
	"github.com/yungbote/signals-backend/internal/observability"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Metrics     *observability.Metrics

	SignalHandler *httpH.SignalHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	v1 := r.Group("/v1")
	if cfg.SignalHandler != nil {
		v1.POST("/signals/score", cfg.SignalHandler.Score)
		v1.POST("/signals/score/batch", cfg.SignalHandler.ScoreBatch)
		v1.POST("/signals/rank", cfg.SignalHandler.Rank)
		v1.POST("/signals/:id/feedback", cfg.SignalHandler.RecordFeedback)
		v1.POST("/feedback/events", cfg.SignalHandler.IngestFeedbackEvent)
		v1.POST("/users/:id/centroid/recompute", cfg.SignalHandler.RecomputeCentroid)
	}

	return r
}
