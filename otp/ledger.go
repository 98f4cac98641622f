package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/acadnet/acadnet/users"
)

// RateLimitError reports an issuance attempt inside the cooldown window,
// carrying the remaining wait so callers can tell the user how long to hold.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting another otp", int(e.RetryAfter.Seconds()+0.999))
}

// Ledger issues and checks one-time codes. The cooldown anchor lives on the
// account row; the pending code lives in the ledger's own store.
type Ledger struct {
	repo     Repo
	accounts users.Repo
	cooldown time.Duration
	nowFunc  func() time.Time
}

// LedgerOption defines a function type to modify the Ledger instance.
type LedgerOption func(*Ledger)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowFunc = now
	}
}

// WithCooldown overrides the default 60 second issuance cooldown.
func WithCooldown(cooldown time.Duration) LedgerOption {
	return func(l *Ledger) {
		l.cooldown = cooldown
	}
}

// NewLedger creates a ledger over the code store and the credential store.
func NewLedger(repo Repo, accounts users.Repo, options ...LedgerOption) *Ledger {
	l := &Ledger{
		repo:     repo,
		accounts: accounts,
		cooldown: time.Minute,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Issue generates a fresh 6-digit code for the account, valid for ttl. Inside
// the cooldown window it fails with *RateLimitError carrying the remaining
// wait. Issuing overwrites any prior unconsumed code for the account. The
// returned code must never be logged or echoed in a response; it goes to the
// mail collaborator and nowhere else.
func (l *Ledger) Issue(ctx context.Context, userID int64, ttl time.Duration) (*Record, error) {
	now := l.nowFunc()

	remaining, err := l.accounts.ClaimOTPSlot(ctx, userID, now, l.cooldown)
	if err != nil {
		if errors.Is(err, users.ErrOTPCooldown) {
			return nil, &RateLimitError{RetryAfter: remaining}
		}
		return nil, errors.Wrap(err, "[Ledger.Issue] ClaimOTPSlot")
	}

	code, err := generateCode()
	if err != nil {
		return nil, errors.Wrap(err, "[Ledger.Issue] generateCode")
	}

	record := &Record{
		UserID:    userID,
		Code:      code,
		ExpiresAt: now.Add(ttl),
	}
	if err := l.repo.Replace(ctx, record); err != nil {
		return nil, errors.Wrap(err, "[Ledger.Issue] Replace")
	}

	return record, nil
}

// Check compares the supplied code against the pending record. Absence,
// expiry, and mismatch all fail with ErrWrongOTP. Success consumes the record
// so it can never pass a second check.
func (l *Ledger) Check(ctx context.Context, userID int64, code string) error {
	record, err := l.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoPendingCode) {
			return ErrWrongOTP
		}
		return errors.Wrap(err, "[Ledger.Check] Get")
	}

	if record.Expired(l.nowFunc()) {
		_ = l.repo.Delete(ctx, userID)
		return ErrWrongOTP
	}

	if code == "" || record.Code != code {
		return ErrWrongOTP
	}

	if err := l.repo.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "[Ledger.Check] Delete")
	}
	return nil
}

// Clear drops any pending code for the account.
func (l *Ledger) Clear(ctx context.Context, userID int64) error {
	return l.repo.Delete(ctx, userID)
}

// generateCode produces a uniformly random fixed-width 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
