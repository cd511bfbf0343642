package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/telemetry"
)

// SessionCounter reports live websocket sessions.
type SessionCounter interface {
	SessionCount() int
	RoomSize(room string) int
}

// RegisterDebugRoutes wires debug-only endpoints. sessions may be nil.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, sessions SessionCounter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "internal", "message": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), auditRecord(c, "audit test", nil))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/sessions", func(c *gin.Context) {
		if sessions == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "internal", "message": "hub not configured"})
			return
		}
		resp := gin.H{"sessions": sessions.SessionCount()}
		if room := c.Query("room"); room != "" {
			resp["room"] = room
			resp["roomSize"] = sessions.RoomSize(room)
		}
		c.JSON(http.StatusOK, resp)
	})
}
