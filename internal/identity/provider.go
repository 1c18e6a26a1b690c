// Package identity tracks who is signed in and broadcasts changes.
package identity

import (
	"sync"

	"minesim-session-go/internal/models"
)

// Provider is the authentication identity source consumed by the core.
type Provider interface {
	// Subscribe registers fn for every identity change. If the signed-in
	// state is already known, fn is called once with it before Subscribe
	// returns. The returned function removes the subscription.
	Subscribe(fn func(*models.Identity)) (unsubscribe func())
	// Current returns the last known identity, or nil when signed out or
	// not yet restored.
	Current() *models.Identity
}

// Publisher accepts identity transitions.
type Publisher interface {
	Publish(id *models.Identity)
}

type subscriber struct {
	id uint64
	fn func(*models.Identity)
}

// Hub is an in-process Provider. Deliveries are serialized: subscribers see
// transitions in publish order, one at a time.
type Hub struct {
	dispatchMu sync.Mutex

	mu      sync.Mutex
	subs    []subscriber
	nextID  uint64
	current *models.Identity
	known   bool
}

// NewHub returns a Hub whose state is unknown until the first Publish.
func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Subscribe(fn func(*models.Identity)) func() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber{id: id, fn: fn})
	cur, known := clone(h.current), h.known
	h.mu.Unlock()

	if known {
		fn(cur)
	}

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish records id as the current identity and notifies every subscriber.
func (h *Hub) Publish(id *models.Identity) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	h.current = clone(id)
	h.known = true
	subs := make([]subscriber, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(clone(id))
	}
}

func (h *Hub) Current() *models.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return clone(h.current)
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func clone(id *models.Identity) *models.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
