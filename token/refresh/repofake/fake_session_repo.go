package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/acadnet/acadnet/token/refresh"
)

var _ refresh.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory refresh session store used by tests. Its
// Rotate is atomic under the repo mutex, matching the single-rotation
// guarantee of the durable implementations.
type FakeSessionRepo struct {
	sessions map[string]*refresh.Session
	lock     sync.Mutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*refresh.Session),
	}
}

func (r *FakeSessionRepo) Create(_ context.Context, session *refresh.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *session
	r.sessions[session.Token] = &stored
	return nil
}

func (r *FakeSessionRepo) Get(_ context.Context, token string) (*refresh.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, refresh.ErrRevoked
	}
	if session.Expired(time.Now()) {
		delete(r.sessions, token)
		return nil, refresh.ErrRevoked
	}
	copied := *session
	return &copied, nil
}

func (r *FakeSessionRepo) Rotate(_ context.Context, oldToken string, next *refresh.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	old, ok := r.sessions[oldToken]
	if !ok {
		return refresh.ErrRevoked
	}
	delete(r.sessions, oldToken)
	if old.Expired(time.Now()) {
		return refresh.ErrRevoked
	}

	stored := *next
	r.sessions[next.Token] = &stored
	return nil
}

func (r *FakeSessionRepo) Delete(_ context.Context, token string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *FakeSessionRepo) DeleteAllForUser(_ context.Context, userID int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for token, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, token)
		}
	}
	return nil
}

// Count reports the number of live sessions for an account. Test helper.
func (r *FakeSessionRepo) Count(userID int64) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for _, session := range r.sessions {
		if session.UserID == userID {
			n++
		}
	}
	return n
}
