package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"minesim-session-go/internal/db"
	"minesim-session-go/internal/identity"
	"minesim-session-go/internal/models"
)

const (
	testRetryDelay = 20 * time.Millisecond
	testReconcile  = 25 * time.Millisecond
)

func newTestTracker(t *testing.T, provider identity.Provider, profiles *fakeProfiles, logger *zap.Logger) *PresenceTracker {
	t.Helper()
	tr := NewPresenceTracker(provider, profiles, PresenceOptions{
		RetryDelay:        testRetryDelay,
		ReconcileInterval: testReconcile,
		WriteTimeout:      time.Second,
	}, logger)
	t.Cleanup(tr.Close)
	return tr
}

func TestPresenceInitializeMarksOnline(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.Initialize(context.Background(), &models.Identity{UserID: "u1"})

	assert.Equal(t, []presenceWrite{{userID: "u1", online: true}}, profiles.written())
	snap := tr.Snapshot()
	assert.True(t, snap.Bound)
	assert.Equal(t, "u1", snap.UserID)
	require.NotNil(t, snap.LastWrite)
	assert.Equal(t, WriteOK, snap.LastWrite.Status)
	assert.Equal(t, 1, snap.LastWrite.Attempt)
}

func TestPresenceInitializeWithoutIdentityIsIgnored(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, identity.NewHub(), profiles, nil)

	tr.Initialize(context.Background(), nil)
	tr.Initialize(context.Background(), &models.Identity{})

	assert.Zero(t, profiles.calls())
	assert.False(t, tr.Snapshot().Bound)
}

func TestPresenceWriteSkippedWhenUnbound(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedOut(), profiles, nil)

	tr.SetOnline(context.Background())

	assert.Zero(t, profiles.calls())
	snap := tr.Snapshot()
	require.NotNil(t, snap.LastWrite)
	assert.Equal(t, WriteSkipped, snap.LastWrite.Status)
	assert.Equal(t, "unbound", snap.LastWrite.Reason)
}

func TestPresenceRebindsFromCurrentIdentity(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.SetOffline(context.Background())

	assert.Equal(t, []presenceWrite{{userID: "u1", online: false}}, profiles.written())
	assert.Equal(t, "u1", tr.Snapshot().UserID)
}

func TestPresenceNeverCreatesMissingProfile(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.missing["u1"] = true
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.Initialize(context.Background(), &models.Identity{UserID: "u1"})
	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)

	assert.Zero(t, profiles.calls())
	snap := tr.Snapshot()
	require.NotNil(t, snap.LastWrite)
	assert.Equal(t, WriteSkipped, snap.LastWrite.Status)
	assert.False(t, snap.PendingRetry)
}

func TestPresenceProfileDeletedBeforeUpdateIsSkipped(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.updateErrs = []error{db.ErrNotFound}
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.SetOnline(context.Background())

	snap := tr.Snapshot()
	require.NotNil(t, snap.LastWrite)
	assert.Equal(t, WriteSkipped, snap.LastWrite.Status)
	assert.False(t, snap.PendingRetry)
}

func TestPresenceRetriesOnceAndSucceeds(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.updateErrs = []error{errBackend}
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.SetOnline(context.Background())
	assert.True(t, tr.Snapshot().PendingRetry)

	assert.Eventually(t, func() bool {
		return len(profiles.written()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, profiles.calls())
	snap := tr.Snapshot()
	assert.False(t, snap.PendingRetry)
	require.NotNil(t, snap.LastWrite)
	assert.Equal(t, WriteOK, snap.LastWrite.Status)
	assert.Equal(t, 2, snap.LastWrite.Attempt)
}

func TestPresenceRetryFailureIsLoggedAndDropped(t *testing.T) {
	logCore, logs := observer.New(zapcore.WarnLevel)
	profiles := newFakeProfiles()
	profiles.updateFail = errBackend
	tr := newTestTracker(t, signedIn("u1", true), profiles, zap.New(logCore))

	tr.SetOnline(context.Background())

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("Presence retry failed, dropping update").Len() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(4 * testRetryDelay)
	assert.Equal(t, 2, profiles.calls(), "exactly one retry")
	assert.Equal(t, 1, logs.FilterMessage("Presence write failed, retrying once").Len())
	assert.False(t, tr.Snapshot().PendingRetry)
}

func TestPresenceOfflineFailureRetriesOnceAfterDelay(t *testing.T) {
	const retryDelay = 80 * time.Millisecond
	logCore, logs := observer.New(zapcore.WarnLevel)
	profiles := newFakeProfiles()
	profiles.updateFail = errBackend
	tr := NewPresenceTracker(signedIn("u1", true), profiles, PresenceOptions{
		RetryDelay:        retryDelay,
		ReconcileInterval: time.Hour,
		WriteTimeout:      time.Second,
	}, zap.New(logCore))
	t.Cleanup(tr.Close)

	start := time.Now()
	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)
	assert.Equal(t, 1, profiles.calls())
	assert.True(t, tr.Snapshot().PendingRetry)

	time.Sleep(retryDelay / 4)
	assert.Equal(t, 1, profiles.calls(), "no retry before the delay")

	require.Eventually(t, func() bool {
		return profiles.calls() == 2
	}, time.Second, 2*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), retryDelay)

	time.Sleep(3 * retryDelay)
	assert.Equal(t, 2, profiles.calls(), "no attempt after the retry fails")
	assert.Equal(t, 1, logs.FilterMessage("Presence retry failed, dropping update").Len())
	assert.False(t, tr.Snapshot().PendingRetry)
}

func TestPresenceNewerWriteSupersedesRetry(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.updateErrs = []error{errBackend}
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.SetOnline(context.Background())
	tr.SetOffline(context.Background())

	time.Sleep(4 * testRetryDelay)
	assert.Equal(t, []presenceWrite{{userID: "u1", online: false}}, profiles.written())
	assert.Equal(t, 2, profiles.calls())
}

func TestPresenceActiveRepeatIsSuppressed(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.HandleLifecycleChange(context.Background(), models.PhaseActive)
	tr.HandleLifecycleChange(context.Background(), models.PhaseActive)

	assert.Equal(t, []presenceWrite{{userID: "u1", online: true}}, profiles.written())
}

func TestPresenceBackgroundAlwaysWrites(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)
	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)
	tr.HandleLifecycleChange(context.Background(), models.PhaseInactive)

	assert.GreaterOrEqual(t, profiles.offlineWrites(), 3)
	assert.True(t, tr.Snapshot().Reconciling)
}

func TestPresenceReconcilesWhileBackgrounded(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedIn("u1", true), profiles, nil)

	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)
	require.Equal(t, 1, profiles.offlineWrites())

	assert.Eventually(t, func() bool {
		return profiles.offlineWrites() >= 3
	}, time.Second, 5*time.Millisecond)

	tr.HandleLifecycleChange(context.Background(), models.PhaseActive)
	assert.False(t, tr.Snapshot().Reconciling)

	last, ok := profiles.lastWrite()
	require.True(t, ok)
	assert.True(t, last.online)

	calls := profiles.calls()
	time.Sleep(4 * testReconcile)
	assert.Equal(t, calls, profiles.calls(), "no ticks after returning to active")
}

func TestPresenceFinalStateFollowsLastPhase(t *testing.T) {
	profiles := newFakeProfiles()
	tr := NewPresenceTracker(signedIn("u1", true), profiles, PresenceOptions{
		RetryDelay:        testRetryDelay,
		ReconcileInterval: time.Millisecond,
	}, nil)
	t.Cleanup(tr.Close)

	for i := 0; i < 50; i++ {
		tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)
		time.Sleep(time.Millisecond)
		tr.HandleLifecycleChange(context.Background(), models.PhaseActive)
	}
	time.Sleep(20 * time.Millisecond)

	last, ok := profiles.lastWrite()
	require.True(t, ok)
	assert.True(t, last.online, "a reconcile tick must not land after the final online write")
}

func TestPresenceCleanupMarksOfflineAndUnbinds(t *testing.T) {
	profiles := newFakeProfiles()
	hub := signedIn("u1", true)
	tr := newTestTracker(t, hub, profiles, nil)

	tr.Initialize(context.Background(), &models.Identity{UserID: "u1"})
	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)
	hub.Publish(nil)
	tr.Cleanup(context.Background())

	last, ok := profiles.lastWrite()
	require.True(t, ok)
	assert.Equal(t, presenceWrite{userID: "u1", online: false}, last)

	snap := tr.Snapshot()
	assert.False(t, snap.Bound)
	assert.False(t, snap.Reconciling)

	calls := profiles.calls()
	tr.SetOnline(context.Background())
	assert.Equal(t, calls, profiles.calls(), "unbound tracker must not write")
}

func TestPresenceCleanupKeepsItsOwnRetry(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, signedOut(), profiles, nil)

	tr.Initialize(context.Background(), &models.Identity{UserID: "u1"})
	profiles.mu.Lock()
	profiles.updateErrs = []error{errBackend}
	profiles.mu.Unlock()
	tr.Cleanup(context.Background())

	assert.Eventually(t, func() bool {
		last, ok := profiles.lastWrite()
		return ok && !last.online && last.userID == "u1"
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceUserSwitchKeepsPreviousUsersRetry(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, identity.NewHub(), profiles, nil)

	tr.Initialize(context.Background(), &models.Identity{UserID: "u1"})
	profiles.mu.Lock()
	profiles.updateErrs = []error{errBackend}
	profiles.mu.Unlock()
	tr.Initialize(context.Background(), &models.Identity{UserID: "u2"})

	assert.Eventually(t, func() bool {
		for _, w := range profiles.written() {
			if w == (presenceWrite{userID: "u1", online: false}) {
				return true
			}
		}
		return false
	}, 10*testRetryDelay, 2*time.Millisecond, "previous user must still go offline")
	assert.Contains(t, profiles.written(), presenceWrite{userID: "u2", online: true})
	assert.Eventually(t, func() bool {
		return !tr.Snapshot().PendingRetry
	}, time.Second, 2*time.Millisecond)
}

func TestPresenceSwitchingUsersCleansUpPrevious(t *testing.T) {
	profiles := newFakeProfiles()
	tr := newTestTracker(t, identity.NewHub(), profiles, nil)

	tr.Initialize(context.Background(), &models.Identity{UserID: "u1"})
	tr.Initialize(context.Background(), &models.Identity{UserID: "u2"})

	assert.Equal(t, []presenceWrite{
		{userID: "u1", online: true},
		{userID: "u1", online: false},
		{userID: "u2", online: true},
	}, profiles.written())
	assert.Equal(t, "u2", tr.Snapshot().UserID)
}

func TestPresenceCloseStopsBackgroundWork(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.updateErrs = []error{nil, errBackend}
	tr := NewPresenceTracker(signedIn("u1", true), profiles, PresenceOptions{
		RetryDelay:        50 * time.Millisecond,
		ReconcileInterval: 10 * time.Millisecond,
	}, nil)

	tr.SetOnline(context.Background())
	tr.HandleLifecycleChange(context.Background(), models.PhaseBackground)

	tr.Close()
	calls := profiles.calls()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, calls, profiles.calls())
}
