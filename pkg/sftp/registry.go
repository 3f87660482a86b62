package sftp

import (
	"fmt"
	"sync"
)

// DefaultName is the name the package level registry functions use.
const DefaultName = "sftp"

// Factory builds a session on first use.
type Factory func() (*Session, error)

// Registry hands out named sessions, constructing each lazily from its
// factory and keeping it until Close.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	sessions  map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
		sessions:  map[string]*Session{},
	}
}

// Register sets the factory for name. A session already built under name is
// reset and dropped.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[name]; ok {
		s.ResetConnection()
		delete(r.sessions, name)
	}
	r.factories[name] = factory
}

func (r *Registry) Session(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[name]; ok {
		return s, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no sftp session registered as %q", name)
	}
	s, err := factory()
	if err != nil {
		return nil, err
	}
	r.sessions[name] = s
	return s, nil
}

// Close resets every constructed session. Factories stay registered.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.sessions {
		s.ResetConnection()
		delete(r.sessions, name)
	}
}

// NewLoginFactory returns a factory that creates a session with opts and
// logs in.
func NewLoginFactory(username, password string, loginOpts []LoginOption, opts ...Option) Factory {
	return func() (*Session, error) {
		s := NewSession(opts...)
		if err := s.Login(username, password, loginOpts...); err != nil {
			return nil, err
		}
		return s, nil
	}
}

var defaultRegistry = NewRegistry()

// Init registers factory under DefaultName.
func Init(factory Factory) {
	defaultRegistry.Register(DefaultName, factory)
}

// Default returns the session registered by Init, building it on first use.
func Default() (*Session, error) {
	return defaultRegistry.Session(DefaultName)
}

// Teardown resets the default session.
func Teardown() {
	defaultRegistry.Close()
}
