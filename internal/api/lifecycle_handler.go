package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// PhaseEmitter accepts raw lifecycle phases from the host.
// *lifecycle.Observer satisfies it.
type PhaseEmitter interface {
	EmitString(raw string) (models.LifecyclePhase, error)
}

// LifecycleHandler relays host lifecycle notifications.
type LifecycleHandler struct {
	emitter PhaseEmitter
	logger  *zap.Logger
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(emitter PhaseEmitter, logger *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{emitter: emitter, logger: logging.OrNop(logger)}
}

// ReportPhase handles POST /api/v1/lifecycle.
func (h *LifecycleHandler) ReportPhase(c *gin.Context) {
	var req models.LifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}

	phase, err := h.emitter.EmitString(req.Phase)
	if err != nil {
		if errors.Is(err, models.ErrUnknownPhase) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unknown lifecycle phase", Details: err.Error()})
			return
		}
		h.logger.Error("Failed to emit lifecycle phase", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to report lifecycle phase"})
		return
	}

	h.logger.Debug("Lifecycle phase reported", zap.String("phase", string(phase)))
	c.Status(http.StatusNoContent)
}
