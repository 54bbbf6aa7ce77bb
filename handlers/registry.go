package handlers

import (
	"sync"

	"github.com/karthikraju391/rag-chat-client/session"
)

// SessionFactory builds the session for a new conversation id.
type SessionFactory func(conversationID string) *session.Session

// Registry keeps one session per conversation id for the life of the
// process. Nothing is persisted.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	factory  SessionFactory
}

func NewRegistry(factory SessionFactory) *Registry {
	return &Registry{sessions: make(map[string]*session.Session), factory: factory}
}

// Get returns the session for id, creating it on first use.
func (r *Registry) Get(id string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := r.factory(id)
	r.sessions[id] = s
	return s
}

// Lookup returns the session for id without creating it.
func (r *Registry) Lookup(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
