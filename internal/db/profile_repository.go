package db

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"minesim-session-go/internal/models"
)

const usersCollection = "users"

// ErrNotFound is returned when a document is not found in Firestore.
var ErrNotFound = errors.New("document not found")

// firestoreProfileRepository implements ProfileRepository using Firestore.
type firestoreProfileRepository struct {
	client *firestore.Client
}

// NewFirestoreProfileRepository creates a new instance of firestoreProfileRepository.
func NewFirestoreProfileRepository(client *firestore.Client) (ProfileRepository, error) {
	if client == nil {
		return nil, errors.New("firestore client is not initialized for ProfileRepository")
	}
	return &firestoreProfileRepository{client: client}, nil
}

// Exists reads the profile document and reports whether it is present.
// A NotFound response is not an error.
func (r *firestoreProfileRepository) Exists(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, errors.New("userID cannot be empty for Exists operation")
	}
	docSnap, err := r.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if errors.Is(mapError(err, userID), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read profile '%s': %w", userID, err)
	}
	return docSnap.Exists(), nil
}

// UpdatePresence applies a field-level update to the profile document.
// DocumentRef.Update fails on a missing document, so the record is never created here.
func (r *firestoreProfileRepository) UpdatePresence(ctx context.Context, userID string, update models.PresenceUpdate) error {
	if userID == "" {
		return errors.New("userID cannot be empty for UpdatePresence operation")
	}
	_, err := r.client.Collection(usersCollection).Doc(userID).Update(ctx, presenceUpdates(update))
	if err != nil {
		return mapError(err, userID)
	}
	return nil
}

// presenceUpdates converts a PresenceUpdate into Firestore field updates.
// lastSeen, lastActive and updatedAt use the server clock.
func presenceUpdates(u models.PresenceUpdate) []firestore.Update {
	return []firestore.Update{
		{Path: "isOnline", Value: u.Online},
		{Path: "status", Value: u.Status()},
		{Path: "appState", Value: u.AppState()},
		{Path: "lastSeen", Value: firestore.ServerTimestamp},
		{Path: "lastActive", Value: firestore.ServerTimestamp},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
}

// mapError translates Firestore gRPC errors into repository errors.
func mapError(err error, userID string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("profile '%s' not found: %w", userID, ErrNotFound)
	}
	return fmt.Errorf("profile '%s': %w", userID, err)
}
