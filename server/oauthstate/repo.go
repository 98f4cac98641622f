// Package oauthstate tracks in-flight federated login attempts between the
// redirect to the provider and the callback. Each state value is single-use.
package oauthstate

import "time"

type Flow struct {
	Provider  string
	ReturnURL string
	CreatedAt time.Time
}

type Repo interface {
	Upsert(state string, flow *Flow) error
	Get(state string) (*Flow, error)
	Delete(state string) error
}
