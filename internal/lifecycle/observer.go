// Package lifecycle adapts host process lifecycle notifications into
// typed phases for the rest of the session core.
package lifecycle

import (
	"sync"

	"go.uber.org/zap"

	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// Source emits lifecycle phases.
type Source interface {
	Subscribe(fn func(models.LifecyclePhase)) (unsubscribe func())
}

type subscriber struct {
	id uint64
	fn func(models.LifecyclePhase)
}

// Observer fans host notifications out to subscribers. Every emitted phase
// is delivered, repeats included; deduplication is left to consumers.
// Deliveries are serialized in emission order.
type Observer struct {
	logger *zap.Logger

	dispatchMu sync.Mutex

	mu     sync.Mutex
	subs   []subscriber
	nextID uint64
	last   models.LifecyclePhase
}

// NewObserver creates an Observer with no subscribers.
func NewObserver(logger *zap.Logger) *Observer {
	return &Observer{logger: logging.OrNop(logger)}
}

func (o *Observer) Subscribe(fn func(models.LifecyclePhase)) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers phase to every subscriber.
func (o *Observer) Emit(phase models.LifecyclePhase) {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	o.mu.Lock()
	prev := o.last
	o.last = phase
	subs := make([]subscriber, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	o.logger.Debug("Lifecycle phase",
		zap.String("phase", string(phase)),
		zap.String("previous", string(prev)),
		zap.Int("subscribers", len(subs)))

	for _, s := range subs {
		s.fn(phase)
	}
}

// EmitString parses host input and emits it. Unknown phases are rejected
// with models.ErrUnknownPhase and nothing is delivered.
func (o *Observer) EmitString(raw string) (models.LifecyclePhase, error) {
	phase, err := models.ParseLifecyclePhase(raw)
	if err != nil {
		return "", err
	}
	o.Emit(phase)
	return phase, nil
}

// Last returns the most recently emitted phase, or "" if none.
func (o *Observer) Last() models.LifecyclePhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}
