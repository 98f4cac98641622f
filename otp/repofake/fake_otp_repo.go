package fakeotprepo

import (
	"context"
	"sync"

	"github.com/acadnet/acadnet/otp"
)

var _ otp.Repo = (*FakeOTPRepo)(nil)

// FakeOTPRepo is an in-memory code store used by tests. Keying by account id
// makes the one-unconsumed-record-per-account invariant structural.
type FakeOTPRepo struct {
	records map[int64]*otp.Record
	lock    sync.Mutex
}

func NewFakeOTPRepo() *FakeOTPRepo {
	return &FakeOTPRepo{
		records: make(map[int64]*otp.Record),
	}
}

func (r *FakeOTPRepo) Replace(_ context.Context, record *otp.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *record
	r.records[record.UserID] = &stored
	return nil
}

func (r *FakeOTPRepo) Get(_ context.Context, userID int64) (*otp.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.records[userID]
	if !ok {
		return nil, otp.ErrNoPendingCode
	}
	copied := *record
	return &copied, nil
}

func (r *FakeOTPRepo) Delete(_ context.Context, userID int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.records, userID)
	return nil
}
