package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/marketlake/internal/http/handlers"
	httpMW "github.com/yungbote/marketlake/internal/http/middleware"
	"github.com/yungbote/marketlake/internal/observability"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// RouterConfig selects the routes a process serves: the API server mounts
// runs, the job runner mounts jobs. Nil handlers are skipped.
type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics

	HealthHandler *httpH.HealthHandler
	RunHandler    *httpH.RunHandler
	EventsHandler *httpH.RunEventsHandler
	JobHandler    *httpH.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName == "" {
		cfg.ServiceName = "marketlake"
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Runs
		if cfg.RunHandler != nil {
			api.POST("/runs", cfg.RunHandler.StartRun)
			api.GET("/runs", cfg.RunHandler.ListRuns)
			api.GET("/runs/:id", cfg.RunHandler.GetRun)
		}
		if cfg.EventsHandler != nil {
			api.GET("/runs/events", cfg.EventsHandler.StreamAll)
			api.GET("/runs/:id/events", cfg.EventsHandler.StreamRun)
		}
	}

	// Job runner
	if cfg.JobHandler != nil {
		r.POST("/jobs/:name/invoke", cfg.JobHandler.Invoke)
	}

	return r
}
