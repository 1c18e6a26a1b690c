package core

import (
	"context"

	"minesim-session-go/internal/models"
)

// DestinationResolver decides where the client lands after launch.
type DestinationResolver interface {
	// Resolve always returns one of the four destinations.
	Resolve(ctx context.Context) models.NavigationDestination
}

// PresenceService keeps the remote presence record in sync with the app lifecycle.
// None of its operations report errors; presence is best-effort.
type PresenceService interface {
	Initialize(ctx context.Context, id *models.Identity)
	SetOnline(ctx context.Context)
	SetOffline(ctx context.Context)
	HandleLifecycleChange(ctx context.Context, phase models.LifecyclePhase)
	Cleanup(ctx context.Context)
	Snapshot() PresenceSnapshot
}
