package models

// Identity is the authenticated user as reported by the auth backend.
// A nil *Identity means signed out.
type Identity struct {
	UserID        string `json:"userId"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}
