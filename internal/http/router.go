package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/aggsync/internal/http/handlers"
	httpMW "github.com/yungbote/aggsync/internal/http/middleware"
	"github.com/yungbote/aggsync/internal/observability"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName string
	CORSOrigins []string
	Log         *logger.Logger
	Metrics     *observability.Metrics

	HealthHandler    *httpH.HealthHandler
	AggregateHandler *httpH.AggregateHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aggsync"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if h := cfg.AggregateHandler; h != nil {
		agg := api.Group("/aggregates")
		agg.GET("", h.List)
		agg.POST("/refresh", h.RefreshAll)
		agg.POST("/:name/refresh", h.Refresh)
		agg.GET("/:name/verify", h.Verify)
		agg.GET("/:name/runs", h.Runs)
		agg.GET("/:name/parents/:id", h.Compute)
		agg.POST("/:name/parents/:id/refresh", h.UpdateParent)
	}

	return r
}
