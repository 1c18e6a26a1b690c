package models

// LifecycleRequest is the body of POST /api/v1/lifecycle.
// The host shell reports every phase change it observes; repeated phases are fine.
type LifecycleRequest struct {
	Phase string `json:"phase" binding:"required"` // "active", "background" or "inactive"
}

// DestinationResponse is returned by GET /api/v1/startup/destination.
type DestinationResponse struct {
	Destination NavigationDestination `json:"destination,omitempty"`
	Resolved    bool                  `json:"resolved"`
}

// SessionResponse is returned after a successful login through the bridge.
type SessionResponse struct {
	UserID        string `json:"userId"`
	EmailVerified bool   `json:"emailVerified"`
}
