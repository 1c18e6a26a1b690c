package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"minesim-session-go/internal/db"
	"minesim-session-go/internal/identity"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// Default presence timings.
const (
	DefaultPresenceRetryDelay        = time.Second
	DefaultPresenceReconcileInterval = 3 * time.Second
	DefaultPresenceWriteTimeout      = 10 * time.Second
)

// WriteStatus is the outcome of one presence write attempt.
type WriteStatus string

const (
	WriteOK      WriteStatus = "ok"
	WriteSkipped WriteStatus = "skipped" // unbound, or the profile does not exist
	WriteFailed  WriteStatus = "failed"
)

// WriteResult describes a single presence write attempt.
type WriteResult struct {
	Status  WriteStatus `json:"status"`
	Online  bool        `json:"online"`
	Attempt int         `json:"attempt"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
	Err     error       `json:"-"`
}

// PresenceSnapshot is a point-in-time view of the tracker.
type PresenceSnapshot struct {
	UserID       string                `json:"userId,omitempty"`
	Bound        bool                  `json:"bound"`
	Phase        models.LifecyclePhase `json:"phase,omitempty"`
	PendingRetry bool                  `json:"pendingRetry"`
	Reconciling  bool                  `json:"reconciling"`
	LastWrite    *WriteResult          `json:"lastWrite,omitempty"`
}

// PresenceOptions tunes a PresenceTracker. Zero values use the defaults.
type PresenceOptions struct {
	RetryDelay        time.Duration
	ReconcileInterval time.Duration
	WriteTimeout      time.Duration
}

// pendingRetry is the single scheduled retry of one user's failed write.
type pendingRetry struct {
	timer *time.Timer
	gen   uint64
}

// PresenceTracker keeps the profile's presence fields in line with the app
// lifecycle for the bound user. One instance lives for the whole process.
//
// Lock order is writeMu before mu. writeMu serializes remote writes so the
// store sees them in call order; mu guards the local state.
type PresenceTracker struct {
	identity identity.Provider
	profiles db.ProfileRepository
	logger   *zap.Logger

	retryDelay        time.Duration
	reconcileInterval time.Duration
	writeTimeout      time.Duration

	writeMu sync.Mutex

	mu            sync.Mutex
	userID        string
	phase         models.LifecyclePhase
	retries       map[string]*pendingRetry // by user id
	retryGen      uint64
	reconcileStop chan struct{}
	last          *WriteResult
	closed        bool

	wg sync.WaitGroup
}

// NewPresenceTracker creates an unbound tracker.
func NewPresenceTracker(provider identity.Provider, profiles db.ProfileRepository, opts PresenceOptions, logger *zap.Logger) *PresenceTracker {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultPresenceRetryDelay
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultPresenceReconcileInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultPresenceWriteTimeout
	}
	return &PresenceTracker{
		identity:          provider,
		profiles:          profiles,
		logger:            logging.OrNop(logger),
		retryDelay:        opts.RetryDelay,
		reconcileInterval: opts.ReconcileInterval,
		writeTimeout:      opts.WriteTimeout,
		retries:           make(map[string]*pendingRetry),
	}
}

// Initialize binds the tracker to id and marks the user online. A previously
// bound different user is marked offline first.
func (t *PresenceTracker) Initialize(ctx context.Context, id *models.Identity) {
	if id == nil || id.UserID == "" {
		t.logger.Debug("Presence initialize ignored: no identity")
		return
	}

	t.mu.Lock()
	prev := t.userID
	t.mu.Unlock()
	if prev != "" && prev != id.UserID {
		t.Cleanup(ctx)
	}

	t.mu.Lock()
	t.userID = id.UserID
	t.mu.Unlock()
	t.logger.Info("Presence bound", zap.String("userId", id.UserID))

	t.SetOnline(ctx)
}

// SetOnline marks the bound user online.
func (t *PresenceTracker) SetOnline(ctx context.Context) {
	t.write(ctx, models.OnlinePresence)
}

// SetOffline marks the bound user offline.
func (t *PresenceTracker) SetOffline(ctx context.Context) {
	t.write(ctx, models.OfflinePresence)
}

// HandleLifecycleChange reacts to a host lifecycle phase. Entering active
// writes online once; background and inactive always write offline and keep
// reconciliation running until the app is active again.
func (t *PresenceTracker) HandleLifecycleChange(ctx context.Context, phase models.LifecyclePhase) {
	t.mu.Lock()
	prev := t.phase
	t.phase = phase
	t.mu.Unlock()

	if phase.IsActive() {
		t.stopReconcile()
		if prev.IsActive() {
			t.logger.Debug("Presence: already active, skipping write")
			return
		}
		t.SetOnline(ctx)
		return
	}

	t.startReconcile()
	t.SetOffline(ctx)
}

// Cleanup marks the bound user offline and unbinds. A failed offline write
// still gets its single retry against the former user.
func (t *PresenceTracker) Cleanup(ctx context.Context) {
	t.stopReconcile()
	t.SetOffline(ctx)

	t.mu.Lock()
	userID := t.userID
	t.userID = ""
	t.mu.Unlock()
	if userID != "" {
		t.logger.Info("Presence unbound", zap.String("userId", userID))
	}
}

// Close stops background work and waits for in-flight retries and ticks.
// The tracker must not be used afterwards.
func (t *PresenceTracker) Close() {
	t.stopReconcile()
	t.mu.Lock()
	t.closed = true
	for userID := range t.retries {
		t.cancelRetryLocked(userID)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Snapshot returns the current tracker state.
func (t *PresenceTracker) Snapshot() PresenceSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := PresenceSnapshot{
		UserID:       t.userID,
		Bound:        t.userID != "",
		Phase:        t.phase,
		PendingRetry: len(t.retries) > 0,
		Reconciling:  t.reconcileStop != nil,
	}
	if t.last != nil {
		last := *t.last
		s.LastWrite = &last
	}
	return s
}

// boundUser returns the bound user, lazily re-binding from the identity
// provider's current snapshot when unbound.
func (t *PresenceTracker) boundUser() string {
	t.mu.Lock()
	userID := t.userID
	t.mu.Unlock()
	if userID != "" || t.identity == nil {
		return userID
	}

	cur := t.identity.Current()
	if cur == nil || cur.UserID == "" {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userID == "" {
		t.userID = cur.UserID
		t.logger.Info("Presence re-bound from current identity", zap.String("userId", cur.UserID))
	}
	return t.userID
}

func (t *PresenceTracker) write(ctx context.Context, target models.PresenceUpdate) WriteResult {
	userID := t.boundUser()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	// This write supersedes a retry still waiting for the same user. A retry
	// for a previous user is left alone so that user still ends up offline.
	t.mu.Lock()
	t.cancelRetryLocked(userID)
	t.mu.Unlock()

	if userID == "" {
		res := WriteResult{Status: WriteSkipped, Online: target.Online, Attempt: 1, Reason: "unbound", At: time.Now()}
		t.record(res)
		t.logger.Debug("Presence write skipped: no identity", zap.Bool("online", target.Online))
		return res
	}

	res := t.attemptLocked(ctx, userID, target, 1)
	if res.Status == WriteFailed {
		t.logger.Warn("Presence write failed, retrying once",
			zap.String("userId", userID),
			zap.Bool("online", target.Online),
			zap.Duration("retryIn", t.retryDelay),
			zap.Error(res.Err))
		t.scheduleRetry(userID, target)
	}
	return res
}

// attemptLocked performs one existence check and field update. writeMu must be held.
func (t *PresenceTracker) attemptLocked(ctx context.Context, userID string, target models.PresenceUpdate, attempt int) WriteResult {
	ctx, cancel := context.WithTimeout(ctx, t.writeTimeout)
	defer cancel()

	res := WriteResult{Online: target.Online, Attempt: attempt}
	exists, err := t.profiles.Exists(ctx, userID)
	switch {
	case err != nil:
		res.Status, res.Err, res.Reason = WriteFailed, err, err.Error()
	case !exists:
		res.Status, res.Reason = WriteSkipped, "profile not found"
	default:
		err = t.profiles.UpdatePresence(ctx, userID, target)
		switch {
		case errors.Is(err, db.ErrNotFound):
			// Deleted between the check and the update.
			res.Status, res.Reason = WriteSkipped, "profile not found"
		case err != nil:
			res.Status, res.Err, res.Reason = WriteFailed, err, err.Error()
		default:
			res.Status = WriteOK
		}
	}
	res.At = time.Now()
	t.record(res)

	if res.Status == WriteSkipped {
		t.logger.Debug("Presence write skipped", zap.String("userId", userID), zap.String("reason", res.Reason))
	}
	return res
}

func (t *PresenceTracker) record(res WriteResult) {
	t.mu.Lock()
	t.last = &res
	t.mu.Unlock()
}

func (t *PresenceTracker) scheduleRetry(userID string, target models.PresenceUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.cancelRetryLocked(userID)
	t.retryGen++
	gen := t.retryGen
	t.wg.Add(1)
	// Callers hold writeMu, so the timer cannot run before the entry is stored.
	timer := time.AfterFunc(t.retryDelay, func() {
		defer t.wg.Done()
		t.runRetry(gen, userID, target)
	})
	t.retries[userID] = &pendingRetry{timer: timer, gen: gen}
}

func (t *PresenceTracker) runRetry(gen uint64, userID string, target models.PresenceUpdate) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if r, ok := t.retries[userID]; !ok || r.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.retries, userID)
	t.mu.Unlock()

	res := t.attemptLocked(context.Background(), userID, target, 2)
	if res.Status == WriteFailed {
		t.logger.Error("Presence retry failed, dropping update",
			zap.String("userId", userID),
			zap.Bool("online", target.Online),
			zap.Error(res.Err))
	}
}

// cancelRetryLocked drops the pending retry for userID, if any. mu must be held.
func (t *PresenceTracker) cancelRetryLocked(userID string) {
	r, ok := t.retries[userID]
	if !ok {
		return
	}
	delete(t.retries, userID)
	if r.timer.Stop() {
		t.wg.Done()
	}
}

func (t *PresenceTracker) startReconcile() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reconcileStop != nil || t.closed {
		return
	}
	stop := make(chan struct{})
	t.reconcileStop = stop
	t.wg.Add(1)
	go t.reconcileLoop(stop)
}

func (t *PresenceTracker) stopReconcile() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reconcileStop != nil {
		close(t.reconcileStop)
		t.reconcileStop = nil
	}
}

func (t *PresenceTracker) reconcileLoop(stop chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.reconcileTick(stop)
		}
	}
}

// reconcileTick re-asserts offline. The phase is re-checked under writeMu so
// a tick racing a switch to active cannot land after the online write.
func (t *PresenceTracker) reconcileTick(stop chan struct{}) {
	userID := t.boundUser()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	stale := t.reconcileStop != stop || t.phase.IsActive()
	if !stale && userID != "" {
		t.cancelRetryLocked(userID)
	}
	t.mu.Unlock()
	if stale || userID == "" {
		return
	}

	t.logger.Debug("Presence reconcile tick", zap.String("userId", userID))
	if res := t.attemptLocked(context.Background(), userID, models.OfflinePresence, 1); res.Status == WriteFailed {
		t.scheduleRetry(userID, models.OfflinePresence)
	}
}
