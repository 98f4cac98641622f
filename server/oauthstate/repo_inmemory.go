package oauthstate

import (
	"errors"
	"sync"
	"time"
)

const flowTTL = 10 * time.Minute

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewInMemoryRepo creates a new in-memory OAuth flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		flows: make(map[string]*Flow),
	}
}

// Upsert stores or updates a flow state
func (r *InMemoryRepo) Upsert(state string, flow *Flow) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.flows[state] = &Flow{
		Provider:  flow.Provider,
		ReturnURL: flow.ReturnURL,
		CreatedAt: flow.CreatedAt,
	}
	return nil
}

// Get retrieves a flow state. Stale entries from abandoned logins are
// reported as missing.
func (r *InMemoryRepo) Get(state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, errors.New("state not found")
	}
	if time.Since(flow.CreatedAt) > flowTTL {
		return nil, errors.New("state expired")
	}

	return &Flow{
		Provider:  flow.Provider,
		ReturnURL: flow.ReturnURL,
		CreatedAt: flow.CreatedAt,
	}, nil
}

// Delete removes a flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}
