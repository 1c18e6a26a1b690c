package models

// Presence values stored in the per-user document of the "users" collection.
// Only isOnline, status, appState, lastSeen, lastActive and updatedAt are ever
// written by this module, and the document is never created here.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	AppStateActive     = "active"
	AppStateBackground = "background"
)

// PresenceUpdate is a partial update of the presence fields.
// Timestamps are assigned by the server when the update is applied.
type PresenceUpdate struct {
	Online bool
}

// OnlinePresence and OfflinePresence are the two targets the tracker converges to.
var (
	OnlinePresence  = PresenceUpdate{Online: true}
	OfflinePresence = PresenceUpdate{Online: false}
)

// Status returns the "status" field value for the update.
func (u PresenceUpdate) Status() string {
	if u.Online {
		return StatusOnline
	}
	return StatusOffline
}

// AppState returns the "appState" field value for the update.
func (u PresenceUpdate) AppState() string {
	if u.Online {
		return AppStateActive
	}
	return AppStateBackground
}
