package core

import (
	"context"
	"errors"
	"sync"

	"minesim-session-go/internal/models"
)

type presenceWrite struct {
	userID string
	online bool
}

// fakeProfiles is an in-memory ProfileRepository with failure injection.
type fakeProfiles struct {
	mu sync.Mutex

	missing     map[string]bool
	existsErr   error
	existsBlock bool
	existsPanic bool

	updateErrs  []error // consumed one per call, nil entries succeed
	updateFail  error   // returned for every call once updateErrs is empty
	updateCalls int
	writes      []presenceWrite
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{missing: map[string]bool{}}
}

func (f *fakeProfiles) Exists(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	block, panics, err, missing := f.existsBlock, f.existsPanic, f.existsErr, f.missing[userID]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if panics {
		panic("profile backend exploded")
	}
	if err != nil {
		return false, err
	}
	return !missing, nil
}

func (f *fakeProfiles) UpdatePresence(_ context.Context, userID string, u models.PresenceUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return err
		}
	} else if f.updateFail != nil {
		return f.updateFail
	}
	f.writes = append(f.writes, presenceWrite{userID: userID, online: u.Online})
	return nil
}

func (f *fakeProfiles) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

func (f *fakeProfiles) written() []presenceWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]presenceWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeProfiles) lastWrite() (presenceWrite, bool) {
	w := f.written()
	if len(w) == 0 {
		return presenceWrite{}, false
	}
	return w[len(w)-1], true
}

func (f *fakeProfiles) offlineWrites() int {
	n := 0
	for _, w := range f.written() {
		if !w.online {
			n++
		}
	}
	return n
}

// memFlags is an in-memory flagstore.Store.
type memFlags struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	panics bool
}

func newMemFlags(kv ...string) *memFlags {
	m := &memFlags{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		m.values[kv[i]] = kv[i+1]
	}
	return m
}

func (m *memFlags) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics {
		panic("flag store corrupted")
	}
	if m.err != nil {
		return "", m.err
	}
	return m.values[key], nil
}

func (m *memFlags) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memFlags) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.values, key)
	return nil
}

// chattyProvider delivers several identities synchronously on Subscribe,
// the way some auth SDKs replay cached state.
type chattyProvider struct {
	events       []*models.Identity
	unsubscribed int
}

func (p *chattyProvider) Subscribe(fn func(*models.Identity)) func() {
	for _, id := range p.events {
		fn(id)
	}
	return func() { p.unsubscribed++ }
}

func (p *chattyProvider) Current() *models.Identity { return nil }

var errBackend = errors.New("rpc error: code = Unavailable desc = backend unavailable")
