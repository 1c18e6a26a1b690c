// Package flagstore holds small durable key/value flags that must survive
// process restarts, such as the first-launch marker and the persisted session token.
package flagstore

import (
	"context"
	"fmt"
	"strings"
)

// Well-known keys.
const (
	// KeyHasLaunched is "true" once onboarding has been shown.
	KeyHasLaunched = "hasLaunched"
	// KeySessionToken holds the last Firebase ID token accepted through the bridge.
	KeySessionToken = "session.idToken"
)

// Store is a durable key/value store for string flags.
type Store interface {
	// Get returns "" with a nil error when key is unset.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// HasLaunched reports whether the launch flag is set. Anything other than
// "true" (case-insensitive) counts as unset.
func HasLaunched(ctx context.Context, s Store) (bool, error) {
	v, err := s.Get(ctx, KeyHasLaunched)
	if err != nil {
		return false, fmt.Errorf("failed to read launch flag: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(v), "true"), nil
}

// MarkLaunched records that onboarding has been shown.
func MarkLaunched(ctx context.Context, s Store) error {
	if err := s.Set(ctx, KeyHasLaunched, "true"); err != nil {
		return fmt.Errorf("failed to write launch flag: %w", err)
	}
	return nil
}
