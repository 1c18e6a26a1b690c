package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minesim-session-go/internal/core"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// DestinationHolder keeps the single startup destination for the process.
type DestinationHolder struct {
	mu       sync.RWMutex
	dest     models.NavigationDestination
	resolved bool
	done     chan struct{}
}

// NewDestinationHolder returns an unresolved holder.
func NewDestinationHolder() *DestinationHolder {
	return &DestinationHolder{done: make(chan struct{})}
}

// Set records dest. Only the first call has an effect.
func (h *DestinationHolder) Set(dest models.NavigationDestination) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved {
		return
	}
	h.dest, h.resolved = dest, true
	close(h.done)
}

// Get returns the destination and whether it has been resolved.
func (h *DestinationHolder) Get() (models.NavigationDestination, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dest, h.resolved
}

// Done is closed once a destination is set.
func (h *DestinationHolder) Done() <-chan struct{} { return h.done }

// ResolveInto runs resolver once and stores the result.
func ResolveInto(ctx context.Context, resolver core.DestinationResolver, holder *DestinationHolder) {
	holder.Set(resolver.Resolve(ctx))
}

// StartupHandler serves the startup destination to the host.
type StartupHandler struct {
	holder *DestinationHolder
	logger *zap.Logger
}

// NewStartupHandler creates a new StartupHandler.
func NewStartupHandler(holder *DestinationHolder, logger *zap.Logger) *StartupHandler {
	return &StartupHandler{holder: holder, logger: logging.OrNop(logger)}
}

// GetDestination handles GET /api/v1/startup/destination.
// It answers 202 until the resolver has settled. With ?wait=true it blocks
// until then or until the request is cancelled.
func (h *StartupHandler) GetDestination(c *gin.Context) {
	if c.Query("wait") == "true" {
		select {
		case <-h.holder.Done():
		case <-c.Request.Context().Done():
		}
	}

	dest, resolved := h.holder.Get()
	if !resolved {
		c.JSON(http.StatusAccepted, models.DestinationResponse{Resolved: false})
		return
	}
	c.JSON(http.StatusOK, models.DestinationResponse{Destination: dest, Resolved: true})
}
