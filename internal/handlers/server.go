package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/middleware"
	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

// EngineOptions configures NewEngine.
type EngineOptions struct {
	Service string
	Token   string
	Debug   bool
	Emitter *telemetry.AuditEmitter
}

// NewEngine builds the control API. /healthz and /metrics stay open; every
// other route requires the control token when one is set.
func NewEngine(control *ControlHandler, opts EngineOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.Service))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/", middleware.ControlAuth(opts.Token))
	control.Register(authed)
	RegisterDebugRoutes(authed, opts.Emitter, opts.Debug)

	return router
}
