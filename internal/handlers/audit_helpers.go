package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/telemetry"
)

// requestIDFromContext returns the id assigned by RequestIDMiddleware, or
// mints one for routers mounted without it.
func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(observability.RequestIDKey); id != "" {
		return id
	}
	if id := observability.RequestIDFromContext(c.Request.Context()); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set(observability.RequestIDKey, id)
	return id
}

// userIDFromContext returns the authenticated user id, or nil for anonymous
// requests.
func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return &userID
	}
	return nil
}

func auditRecord(c *gin.Context, text string, userID *string) telemetry.Record {
	if userID == nil {
		userID = userIDFromContext(c)
	}
	return telemetry.Record{Level: telemetry.LevelInfo, Text: text, RequestID: requestIDFromContext(c), UserID: userID}
}
