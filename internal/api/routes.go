package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minesim-session-go/internal/middleware"
)

// Handlers groups the bridge handlers passed to SetupRoutes.
type Handlers struct {
	Startup   *StartupHandler
	Lifecycle *LifecycleHandler
	Session   *SessionHandler
	Presence  *PresenceHandler
}

// SetupRoutes configures the host bridge routes. Global middleware (logging,
// recovery, CORS, rate limit) is expected to be installed on router already.
func SetupRoutes(router *gin.Engine, authMW *middleware.AuthMiddleware, h Handlers, logger *zap.Logger) {
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/startup/destination", h.Startup.GetDestination)
		apiV1.POST("/lifecycle", h.Lifecycle.ReportPhase)
		apiV1.GET("/presence", h.Presence.GetPresence)

		sessionGroup := apiV1.Group("/session")
		{
			// The host forwards the Firebase ID token it just obtained.
			sessionGroup.POST("/login", authMW.VerifyToken(), h.Session.Login)
			sessionGroup.POST("/logout", h.Session.Logout)
		}

		apiV1.POST("/onboarding/complete", h.Session.CompleteOnboarding)
	}

	if logger != nil {
		logger.Info("Bridge routes configured under /api/v1 and /ping")
	}
}
