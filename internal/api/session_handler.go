package api

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minesim-session-go/internal/flagstore"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/middleware"
	"minesim-session-go/internal/models"
)

// SessionManager records sign-in and sign-out reported by the host.
// *identity.Sessions satisfies it.
type SessionManager interface {
	SignIn(ctx context.Context, rawToken string, token *auth.Token) (*models.Identity, error)
	SignOut(ctx context.Context) error
}

// SessionHandler handles session and onboarding endpoints.
type SessionHandler struct {
	sessions SessionManager
	flags    flagstore.Store
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionManager, flags flagstore.Store, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, flags: flags, logger: logging.OrNop(logger)}
}

// Login handles POST /api/v1/session/login. The ID token has already been
// verified by the auth middleware.
func (h *SessionHandler) Login(c *gin.Context) {
	token, raw, ok := middleware.TokenFromContext(c)
	if !ok {
		h.logger.Error("Login: verified token missing from context; auth middleware did not run")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: token not found in context"})
		return
	}

	id, err := h.sessions.SignIn(c.Request.Context(), raw, token)
	if err != nil {
		h.logger.Error("Login: failed to record session", zap.String("userId", token.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to record session", Details: err.Error()})
		return
	}

	h.logger.Info("Session signed in", zap.String("userId", id.UserID), zap.Bool("emailVerified", id.EmailVerified))
	c.JSON(http.StatusOK, models.SessionResponse{UserID: id.UserID, EmailVerified: id.EmailVerified})
}

// Logout handles POST /api/v1/session/logout. The identity is cleared even
// if the persisted token could not be removed.
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		h.logger.Warn("Logout: persisted token not removed", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

// CompleteOnboarding handles POST /api/v1/onboarding/complete by setting the
// launch flag.
func (h *SessionHandler) CompleteOnboarding(c *gin.Context) {
	if err := flagstore.MarkLaunched(c.Request.Context(), h.flags); err != nil {
		h.logger.Error("Failed to set launch flag", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to record onboarding", Details: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
