package identity

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"minesim-session-go/internal/flagstore"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Sessions restores the signed-in user from the persisted ID token at cold
// start and handles sign-in/sign-out reported by the host.
type Sessions struct {
	verifier  TokenVerifier
	store     flagstore.Store
	publisher Publisher
	logger    *zap.Logger
}

// NewSessions creates a Sessions manager.
func NewSessions(verifier TokenVerifier, store flagstore.Store, publisher Publisher, logger *zap.Logger) *Sessions {
	return &Sessions{
		verifier:  verifier,
		store:     store,
		publisher: publisher,
		logger:    logging.OrNop(logger),
	}
}

// Restore reads the persisted token and publishes the resulting identity,
// or nil when there is no usable token. If ctx ends first nothing is
// published and ctx.Err() is returned.
//
// Only the ID token is persisted, so a session survives restarts for the
// token's lifetime (one hour). Past that Restore signs out and the host is
// expected to sign in again through the bridge.
func (s *Sessions) Restore(ctx context.Context) error {
	raw, err := s.store.Get(ctx, flagstore.KeySessionToken)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// An unreadable store is treated as signed out.
		s.logger.Warn("Failed to read persisted session token", zap.Error(err))
		s.publisher.Publish(nil)
		return nil
	}
	if raw == "" {
		s.logger.Debug("No persisted session token")
		s.publisher.Publish(nil)
		return nil
	}

	token, err := s.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if auth.IsIDTokenExpired(err) {
			s.logger.Info("Persisted session token expired, signing out")
		} else {
			s.logger.Info("Persisted session token rejected, signing out", zap.Error(err))
		}
		if delErr := s.store.Delete(ctx, flagstore.KeySessionToken); delErr != nil {
			s.logger.Warn("Failed to delete stale session token", zap.Error(delErr))
		}
		s.publisher.Publish(nil)
		return nil
	}

	id := FromToken(token)
	s.logger.Info("Session restored", zap.String("userId", id.UserID), zap.Bool("emailVerified", id.EmailVerified))
	s.publisher.Publish(id)
	return nil
}

// SignIn persists an already verified token and publishes its identity.
func (s *Sessions) SignIn(ctx context.Context, rawToken string, token *auth.Token) (*models.Identity, error) {
	if rawToken == "" || token == nil {
		return nil, errors.New("sign in requires a verified token")
	}
	if err := s.store.Set(ctx, flagstore.KeySessionToken, rawToken); err != nil {
		return nil, fmt.Errorf("failed to persist session token: %w", err)
	}
	id := FromToken(token)
	s.publisher.Publish(id)
	return id, nil
}

// SignOut forgets the persisted token and publishes nil. The identity is
// cleared even when the store cannot be updated.
func (s *Sessions) SignOut(ctx context.Context) error {
	err := s.store.Delete(ctx, flagstore.KeySessionToken)
	s.publisher.Publish(nil)
	if err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}
	return nil
}

// FromToken maps verified token claims onto an Identity.
func FromToken(token *auth.Token) *models.Identity {
	id := &models.Identity{UserID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	return id
}
