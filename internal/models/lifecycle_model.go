package models

import (
	"errors"
	"fmt"
	"strings"
)

// LifecyclePhase is the coarse process state reported by the host platform.
type LifecyclePhase string

const (
	PhaseActive     LifecyclePhase = "active"
	PhaseBackground LifecyclePhase = "background"
	PhaseInactive   LifecyclePhase = "inactive"
)

// ErrUnknownPhase is returned by ParseLifecyclePhase for unrecognized input.
var ErrUnknownPhase = errors.New("unknown lifecycle phase")

// ParseLifecyclePhase converts host input such as "Background" into a LifecyclePhase.
func ParseLifecyclePhase(s string) (LifecyclePhase, error) {
	switch p := LifecyclePhase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhaseActive, PhaseBackground, PhaseInactive:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// IsActive reports whether the app is in the foreground.
func (p LifecyclePhase) IsActive() bool { return p == PhaseActive }
