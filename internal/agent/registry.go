package agent

import (
	"context"
	"sync"

	"github.com/chadiek/hudlink/internal/display"
)

// Registry owns the live sessions, at most one per user.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
	// ending holds sessions that were removed but have not finished shutting
	// down. A user's next session is not created until its predecessor is gone,
	// so the predecessor's state cleanup cannot clobber it.
	ending map[string]*Session
}

// NewRegistry returns an empty registry whose sessions share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Session),
		ending:   make(map[string]*Session),
	}
}

// Open starts a session for user bound to transport, ending any session the
// user already had. transport may be nil for sessions with no device.
func (r *Registry) Open(ctx context.Context, user string, transport display.Transport) *Session {
	for {
		r.mu.Lock()
		if dying := r.ending[user]; dying != nil {
			r.mu.Unlock()
			<-dying.Done()
			r.mu.Lock()
			if r.ending[user] == dying {
				delete(r.ending, user)
			}
			r.mu.Unlock()
			continue
		}
		if old := r.sessions[user]; old != nil {
			r.mu.Unlock()
			r.retire(user, old)
			continue
		}
		s := newSession(ctx, user, transport, r.deps)
		r.sessions[user] = s
		r.mu.Unlock()

		go s.run()
		go func() {
			<-s.Done()
			r.mu.Lock()
			if r.sessions[user] == s {
				delete(r.sessions, user)
			}
			r.mu.Unlock()
		}()
		return s
	}
}

// retire ends s and waits for it. It is a no-op if s is no longer the user's
// live session.
func (r *Registry) retire(user string, s *Session) {
	r.mu.Lock()
	if r.sessions[user] != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, user)
	r.ending[user] = s
	r.mu.Unlock()

	s.End()
	<-s.Done()

	r.mu.Lock()
	if r.ending[user] == s {
		delete(r.ending, user)
	}
	r.mu.Unlock()
}

// Ensure returns the user's session, opening one without a device if needed.
func (r *Registry) Ensure(ctx context.Context, user string) *Session {
	if s, ok := r.Get(user); ok {
		return s
	}
	return r.Open(ctx, user, nil)
}

// Get returns the user's live session.
func (r *Registry) Get(user string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[user]
	return s, ok
}

// End ends the user's session if there is one and waits for it to finish.
func (r *Registry) End(user string) {
	if s, ok := r.Get(user); ok {
		r.retire(user, s)
	}
}

// CloseAll ends every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make(map[string]*Session, len(r.sessions))
	for user, s := range r.sessions {
		all[user] = s
	}
	r.mu.Unlock()
	for user, s := range all {
		r.retire(user, s)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
