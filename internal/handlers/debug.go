package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-client/internal/notify"
	"chat-client/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), notify.Notice{
			ID:    requestIDFromContext(c),
			Level: notify.LevelInfo,
			Text:  "audit test",
			At:    time.Now(),
		}, userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
