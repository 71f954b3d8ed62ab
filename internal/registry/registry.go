// Package registry tracks the sessions configured for this run and which
// one is currently active. Registration order is preserved so listings and
// forwarding candidates come out in a stable order.
package registry

import (
	"fmt"
	"sync"

	"github.com/simon/ferryctl/internal/session"
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	order    []string
	active   string
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// Register adds a session under its name. The first registered session
// becomes active.
func (r *Registry) Register(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.sessions[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.sessions[name] = s
	r.order = append(r.order, name)
	if r.active == "" {
		r.active = name
	}
	return nil
}

func (r *Registry) Get(name string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SetActive switches the active session.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	r.active = name
	return nil
}

// Active returns the active session, or nil when nothing is registered.
func (r *Registry) Active() *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil
	}
	return r.sessions[r.active]
}

func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// StopAll kills every session's child. Used on shutdown.
func (r *Registry) StopAll() {
	r.mu.RLock()
	all := make([]*session.Session, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.sessions[name])
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Kill()
	}
}
