package flowsession

import (
	"fmt"
	"sync"
	"time"
)

// InMemoryRepo is an in-memory implementation of Repo
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewInMemoryRepo creates a new in-memory flow session repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]Session),
	}
}

// Upsert creates or updates a flow session
func (r *InMemoryRepo) Upsert(id string, session Session) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = session
	return nil
}

// Get retrieves a flow session by id
func (r *InMemoryRepo) Get(id string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("session id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session not found")
	}
	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return Session{}, fmt.Errorf("session expired")
	}
	return session, nil
}

// Delete removes a flow session
func (r *InMemoryRepo) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}
