package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"minesim-session-go/internal/db"
	"minesim-session-go/internal/flagstore"
	"minesim-session-go/internal/identity"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// Default startup resolution bounds.
const (
	DefaultStartupTimeout     = 5 * time.Second
	DefaultProfileReadTimeout = 4 * time.Second
	flagReadTimeout           = 2 * time.Second
)

// How a destination was reached, for logs.
const (
	pathIdentity  = "identity"
	pathSignedOut = "signed_out"
	pathTimeout   = "timeout"
	pathCancelled = "cancelled"
	pathRecovered = "recovered"
)

// ResolverOptions tunes a StartupResolver. Zero values use the defaults.
type ResolverOptions struct {
	Timeout            time.Duration
	ProfileReadTimeout time.Duration
}

// StartupResolver picks the landing destination once per process start.
// It races the first identity event against a timeout; whichever wins
// decides, and the other side is cancelled.
type StartupResolver struct {
	identity identity.Provider
	profiles db.ProfileRepository
	flags    flagstore.Store
	logger   *zap.Logger

	timeout            time.Duration
	profileReadTimeout time.Duration
}

// NewStartupResolver creates a StartupResolver.
func NewStartupResolver(
	provider identity.Provider,
	profiles db.ProfileRepository,
	flags flagstore.Store,
	opts ResolverOptions,
	logger *zap.Logger,
) *StartupResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStartupTimeout
	}
	if opts.ProfileReadTimeout <= 0 {
		opts.ProfileReadTimeout = DefaultProfileReadTimeout
	}
	return &StartupResolver{
		identity:           provider,
		profiles:           profiles,
		flags:              flags,
		logger:             logging.OrNop(logger),
		timeout:            opts.Timeout,
		profileReadTimeout: opts.ProfileReadTimeout,
	}
}

// Resolve never blocks longer than the startup timeout plus one profile read
// and one flag read, and always returns a valid destination.
func (r *StartupResolver) Resolve(ctx context.Context) models.NavigationDestination {
	started := time.Now()
	dest, path := r.resolve(ctx)
	r.logger.Info("Startup destination resolved",
		zap.String("destination", dest.String()),
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(started)))
	return dest
}

func (r *StartupResolver) resolve(ctx context.Context) (models.NavigationDestination, string) {
	raceCtx, cancelTimer := context.WithTimeout(ctx, r.timeout)
	defer cancelTimer()

	// Buffered and guarded by once: the callback never blocks the provider
	// and at most one identity event is accepted.
	first := make(chan *models.Identity, 1)
	var once sync.Once
	unsubscribe := sync.OnceFunc(r.identity.Subscribe(func(id *models.Identity) {
		once.Do(func() { first <- id })
	}))
	defer unsubscribe()

	select {
	case id := <-first:
		cancelTimer()
		unsubscribe()
		return r.resolveIdentity(ctx, id)
	case <-raceCtx.Done():
		unsubscribe()
		path := pathTimeout
		if ctx.Err() != nil {
			path = pathCancelled
		}
		r.logger.Warn("No identity event before startup deadline, using launch flag",
			zap.Duration("timeout", r.timeout),
			zap.String("path", path))
		return r.resolveBasic(ctx), path
	}
}

// resolveIdentity handles the identity-won branch. A panic anywhere in it
// degrades to basic resolution.
func (r *StartupResolver) resolveIdentity(ctx context.Context, id *models.Identity) (dest models.NavigationDestination, path string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Startup resolution failed unexpectedly, using launch flag", zap.Any("panic", rec))
			dest, path = r.resolveBasic(ctx), pathRecovered
		}
	}()

	if id == nil {
		return r.resolveBasic(ctx), pathSignedOut
	}

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.profileReadTimeout)
	defer cancel()

	exists, err := r.profiles.Exists(readCtx, id.UserID)
	switch {
	case err != nil:
		// Fail open: a signed-in user is never stuck behind a read error,
		// which also skips the email verification gate.
		r.logger.Warn("Profile read failed, continuing to main",
			zap.String("userId", id.UserID),
			zap.String("policy", "fail_open"),
			zap.Error(err))
		return models.DestinationMain, pathIdentity
	case !exists:
		r.logger.Debug("Profile not found yet, continuing to main", zap.String("userId", id.UserID))
		return models.DestinationMain, pathIdentity
	case id.EmailVerified:
		return models.DestinationMain, pathIdentity
	default:
		return models.DestinationEmailVerification, pathIdentity
	}
}

// resolveBasic decides from the launch flag alone. It runs detached from
// ctx cancellation so a timed-out or cancelled caller still gets an answer,
// and a failing flag store lands on onboarding.
func (r *StartupResolver) resolveBasic(ctx context.Context) (dest models.NavigationDestination) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Launch flag read failed unexpectedly, defaulting to onboarding", zap.Any("panic", rec))
			dest = models.DestinationOnboarding
		}
	}()

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flagReadTimeout)
	defer cancel()

	launched, err := flagstore.HasLaunched(readCtx, r.flags)
	if err != nil {
		r.logger.Warn("Launch flag unavailable, defaulting to onboarding", zap.Error(err))
		return models.DestinationOnboarding
	}
	if !launched {
		return models.DestinationOnboarding
	}
	return models.DestinationLogin
}
