package tryon

import (
	"fmt"
	"sync"
	"time"

	"tryonapp/capture"
	"tryonapp/services"
)

// Session is one user's controller together with the pieces a front-end
// needs to feed it.
type Session struct {
	UserID     string
	Controller *SessionController
	// Inbox is set when device uploads feed the capture provider.
	Inbox  *capture.Inbox
	Tokens *services.StaticToken

	lastSeen time.Time
}

// Factory builds the controller options for a new user session. tokens
// always returns the latest bearer token seen for the user.
type Factory func(userID string, tokens *services.StaticToken) (Options, *capture.Inbox, error)

// Registry keeps one Session per user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	now      func() time.Time
	onDrop   func(userID string)
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		now:      time.Now,
	}
}

// Get returns the user's session, creating it on first use. A non-empty
// token replaces the one the session forwards to the backend.
func (r *Registry) Get(userID, token string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		if token != "" {
			s.Tokens.Set(token)
		}
		s.lastSeen = r.now()
		return s, nil
	}

	tokens := services.NewStaticToken(token)
	opts, inbox, err := r.factory(userID, tokens)
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", userID, err)
	}
	s := &Session{
		UserID:     userID,
		Controller: NewSessionController(opts),
		Inbox:      inbox,
		Tokens:     tokens,
		lastSeen:   r.now(),
	}
	r.sessions[userID] = s
	return s, nil
}

// OnDrop registers fn to run after a session is removed, evicted or closed.
func (r *Registry) OnDrop(fn func(userID string)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

func (r *Registry) drop(s *Session) {
	s.Controller.Close()
	r.mu.Lock()
	fn := r.onDrop
	r.mu.Unlock()
	if fn != nil {
		fn(s.UserID)
	}
}

func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if ok {
		r.drop(s)
	}
}

// Evict closes sessions not used for longer than idle and reports how many
// were removed.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		r.drop(s)
	}
	return len(stale)
}

func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		r.drop(s)
	}
}
