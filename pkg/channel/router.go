package channel

import (
	"sync"

	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/frame"
)

var (
	ErrSessionExists = errors.New("session already registered")
	ErrNoSession     = errors.New("no session for spacecraft")
)

// Session consumes the frames addressed to one spacecraft id on a channel
type Session interface {
	// OnFrame is called with every valid frame for this session. The
	// session takes ownership of f.
	OnFrame(f *frame.Frame) error

	// SpacecraftID returns the id this session answers to
	SpacecraftID() uint16
}

// Router routes frames to sessions by spacecraft id
type Router struct {
	sessions map[uint16]Session
	mu       sync.RWMutex
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		sessions: make(map[uint16]Session),
	}
}

// AddSession adds a session to the router
func (r *Router) AddSession(session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scid := session.SpacecraftID()
	if _, exists := r.sessions[scid]; exists {
		return errors.Wrapf(ErrSessionExists, "spacecraft %d", scid)
	}

	r.sessions[scid] = session
	return nil
}

// RemoveSession removes a session from the router
func (r *Router) RemoveSession(scid uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, scid)
}

// Route hands f to the session registered for its spacecraft id. When no
// session matches, f is released and ErrNoSession returned.
func (r *Router) Route(f *frame.Frame) error {
	r.mu.RLock()
	session, exists := r.sessions[f.Header.SpacecraftID]
	r.mu.RUnlock()

	if !exists {
		f.Release()
		return errors.Wrapf(ErrNoSession, "spacecraft %d", f.Header.SpacecraftID)
	}
	return session.OnFrame(f)
}

// GetSession returns a session by spacecraft id
func (r *Router) GetSession(scid uint16) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[scid]
	return session, exists
}

// GetSessionCount returns the number of active sessions
func (r *Router) GetSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Clear removes all sessions
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[uint16]Session)
}
