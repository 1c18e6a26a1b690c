package core

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"minesim-session-go/internal/identity"
	"minesim-session-go/internal/lifecycle"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// SessionBinder drives a PresenceService from identity and lifecycle events:
// sign-in initializes it, sign-out cleans it up, and every lifecycle phase
// is forwarded.
type SessionBinder struct {
	presence PresenceService
	logger   *zap.Logger

	mu     sync.Mutex
	userID string
	unsubs []func()
}

// NewSessionBinder creates a binder for presence.
func NewSessionBinder(presence PresenceService, logger *zap.Logger) *SessionBinder {
	return &SessionBinder{presence: presence, logger: logging.OrNop(logger)}
}

// Bind subscribes to both sources. ctx is used for every presence call the
// binder makes and should live as long as the process.
func (b *SessionBinder) Bind(ctx context.Context, provider identity.Provider, source lifecycle.Source) {
	unsubIdentity := provider.Subscribe(func(id *models.Identity) {
		b.onIdentity(ctx, id)
	})
	unsubLifecycle := source.Subscribe(func(phase models.LifecyclePhase) {
		b.presence.HandleLifecycleChange(ctx, phase)
	})

	b.mu.Lock()
	b.unsubs = append(b.unsubs, unsubIdentity, unsubLifecycle)
	b.mu.Unlock()
}

func (b *SessionBinder) onIdentity(ctx context.Context, id *models.Identity) {
	b.mu.Lock()
	prev := b.userID
	if id == nil {
		b.userID = ""
	} else {
		b.userID = id.UserID
	}
	b.mu.Unlock()

	switch {
	case id == nil && prev != "":
		b.logger.Info("Signed out, cleaning up presence", zap.String("userId", prev))
		b.presence.Cleanup(ctx)
	case id == nil:
		// Signed out at startup; nothing is bound.
	case id.UserID == prev:
		// Token refresh or repeated notification for the same user.
	default:
		b.logger.Info("Signed in, initializing presence", zap.String("userId", id.UserID))
		b.presence.Initialize(ctx, id)
	}
}

// Close removes the subscriptions. It does not clean up presence.
func (b *SessionBinder) Close() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}
