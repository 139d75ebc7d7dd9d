package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/realtime"
)

// RealtimeHandler upgrades callers to a websocket that receives their events.
type RealtimeHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, logger: logger.OrNop(log)}
}

// Connect handles GET /v1/ws
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID := caller(c).UserID
	// The upgrader has already written an HTTP error when this fails.
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}
