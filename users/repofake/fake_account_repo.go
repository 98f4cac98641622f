package fakeaccountrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/acadnet/acadnet/users"
)

var _ users.Repo = (*FakeAccountRepo)(nil)

// FakeAccountRepo is an in-memory credential store used by tests. It enforces
// the same email/username uniqueness backstop as the SQL implementation.
type FakeAccountRepo struct {
	accounts  map[int64]*users.Account
	emailIds  map[string]int64
	usernames map[string]int64
	nextID    int64
	lock      sync.Mutex
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts:  make(map[int64]*users.Account),
		emailIds:  make(map[string]int64),
		usernames: make(map[string]int64),
		nextID:    1,
	}
}

func (r *FakeAccountRepo) Create(_ context.Context, account *users.Account) (*users.Account, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.emailIds[account.Email]; ok {
		return nil, users.ErrDuplicateEmail
	}
	if _, ok := r.usernames[account.Username]; ok {
		return nil, users.ErrDuplicateUsername
	}

	stored := *account
	stored.ID = r.nextID
	r.nextID++
	if stored.LastOTPAt.IsZero() {
		stored.LastOTPAt = users.LastOTPEpoch
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.accounts[stored.ID] = &stored
	r.emailIds[stored.Email] = stored.ID
	r.usernames[stored.Username] = stored.ID

	out := stored
	return &out, nil
}

func (r *FakeAccountRepo) GetByID(_ context.Context, id int64) (*users.Account, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.copyOf(id)
}

func (r *FakeAccountRepo) GetByEmail(_ context.Context, email string) (*users.Account, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	id, ok := r.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return r.copyOf(id)
}

func (r *FakeAccountRepo) GetByUsername(_ context.Context, username string) (*users.Account, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	id, ok := r.usernames[users.NormalizeUsername(username)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return r.copyOf(id)
}

func (r *FakeAccountRepo) UpdatePasswordHash(_ context.Context, id int64, newHash string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return users.ErrNotFound
	}
	account.PasswordHash = newHash
	account.UpdatedAt = time.Now()
	return nil
}

func (r *FakeAccountRepo) SetVerified(_ context.Context, id int64, verified bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return users.ErrNotFound
	}
	account.Verified = verified
	account.UpdatedAt = time.Now()
	return nil
}

func (r *FakeAccountRepo) SetRole(_ context.Context, id int64, role users.RoleType) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return users.ErrNotFound
	}
	account.Role = role
	account.UpdatedAt = time.Now()
	return nil
}

func (r *FakeAccountRepo) SetBanned(_ context.Context, id int64, banned bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return users.ErrNotFound
	}
	account.Banned = banned
	account.UpdatedAt = time.Now()
	return nil
}

func (r *FakeAccountRepo) ClaimOTPSlot(_ context.Context, id int64, now time.Time, cooldown time.Duration) (time.Duration, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return 0, users.ErrNotFound
	}

	elapsed := now.Sub(account.LastOTPAt)
	if elapsed < cooldown {
		return cooldown - elapsed, users.ErrOTPCooldown
	}

	account.LastOTPAt = now
	account.UpdatedAt = now
	return 0, nil
}

func (r *FakeAccountRepo) Delete(_ context.Context, id int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return users.ErrNotFound
	}
	delete(r.emailIds, account.Email)
	delete(r.usernames, account.Username)
	delete(r.accounts, id)
	return nil
}

func (r *FakeAccountRepo) List(_ context.Context, offset, limit int) ([]*users.Account, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	all := make([]*users.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		copied := *a
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return []*users.Account{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// copyOf must be called with the lock held.
func (r *FakeAccountRepo) copyOf(id int64) (*users.Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *account
	return &copied, nil
}
