package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"minesim-session-go/internal/core"
)

// PresenceHandler exposes the presence tracker state for diagnostics.
type PresenceHandler struct {
	presence core.PresenceService
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(presence core.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence handles GET /api/v1/presence.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	c.JSON(http.StatusOK, h.presence.Snapshot())
}
