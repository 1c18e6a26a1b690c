package db

import (
	"context"

	"minesim-session-go/internal/models"
)

// ProfileRepository is the remote per-user profile document store.
type ProfileRepository interface {
	// Exists reports whether the profile document for userID exists.
	Exists(ctx context.Context, userID string) (bool, error)
	// UpdatePresence writes the presence fields of an existing profile.
	// It never creates the document; a missing document yields ErrNotFound.
	UpdatePresence(ctx context.Context, userID string, update models.PresenceUpdate) error
}
