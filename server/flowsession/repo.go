// Package flowsession holds short-lived server-side context for the two
// cookie-driven OTP flows: account verification after signup and password
// reset. The browser carries only an opaque token; the account identity and
// the "OTP already checked" gate live here.
package flowsession

import "time"

// Purpose of a flow session.
const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"
)

type Session struct {
	AccountID int64
	Email     string
	Username  string
	Purpose   string

	// OTPChecked is set once the reset code has been consumed; password
	// change is refused without it.
	OTPChecked bool

	CreatedAt time.Time
	ExpiresAt time.Time
}

type Repo interface {
	Upsert(id string, session Session) error
	Get(id string) (Session, error)
	Delete(id string) error
}
