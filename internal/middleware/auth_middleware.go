package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minesim-session-go/internal/identity"
	"minesim-session-go/internal/logging"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID        = "userID"
	ContextUserEmail     = "userEmail"
	ContextEmailVerified = "emailVerified"
	ContextIDToken       = "idToken"
	ContextToken         = "token"
)

// ErrorResponse is a local definition for sending standardized error messages.
// It mirrors the one in internal/api to avoid an import cycle.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AuthMiddleware provides Gin middleware for Firebase token authentication.
type AuthMiddleware struct {
	verifier identity.TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
// It panics if verifier is nil; the bridge cannot accept sign-ins without it.
func NewAuthMiddleware(verifier identity.TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	if verifier == nil {
		panic("token verifier is not initialized for AuthMiddleware")
	}
	return &AuthMiddleware{verifier: verifier, logger: logging.OrNop(logger)}
}

// VerifyToken verifies the Firebase ID token in the Authorization header and
// stores the caller's claims in the Gin context.
func (m *AuthMiddleware) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header is required"})
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header format must be 'Bearer {token}'"})
			return
		}
		idToken := parts[1]

		token, err := m.verifier.VerifyIDToken(c.Request.Context(), idToken)
		if err != nil {
			// Details stay server-side.
			m.logger.Warn("Failed to verify Firebase ID token", zap.Error(err), zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token"})
			return
		}

		c.Set(ContextUserID, token.UID)
		c.Set(ContextIDToken, idToken)
		c.Set(ContextToken, token)
		if email, ok := token.Claims["email"].(string); ok {
			c.Set(ContextUserEmail, email)
		}
		verified, _ := token.Claims["email_verified"].(bool)
		c.Set(ContextEmailVerified, verified)

		c.Next()
	}
}

// TokenFromContext returns the verified token stored by VerifyToken.
func TokenFromContext(c *gin.Context) (*auth.Token, string, bool) {
	v, _ := c.Get(ContextToken)
	token, ok := v.(*auth.Token)
	if !ok || token == nil {
		return nil, "", false
	}
	return token, c.GetString(ContextIDToken), true
}
