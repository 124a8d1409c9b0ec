// Package store persists conversations to the remote backend for signed-in
// users and to the local key-value file for guests.
package store

import (
	"context"
	"time"

	"github.com/iksnae/chatsync/internal"
)

// SaveRequest is one persistence call for a conversation. ID is the bound
// session id ("" when unbound) and Synced the number of leading messages
// already durable in that session.
type SaveRequest struct {
	ID       string
	Title    string
	Messages []internal.Message
	Synced   int
}

// SaveResult reports the id the conversation is bound to and how many of
// its messages are durable there. It is meaningful even when Save fails.
type SaveResult struct {
	ID     string
	Synced int
}

// SessionStore is implemented by LocalStore and RemoteStore
type SessionStore interface {
	Mode() internal.Mode
	List(ctx context.Context) ([]internal.Session, error)
	Get(ctx context.Context, id string) (*internal.Session, error)
	Save(ctx context.Context, req SaveRequest) (SaveResult, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, title string) error
}

// Replacer is implemented by stores that can rewrite their whole session
// list in one write.
type Replacer interface {
	ReplaceAll(ctx context.Context, sessions []internal.Session) error
}

// Selector picks the store for an auth session
type Selector struct {
	local *LocalStore
	api   RemoteAPI
	limit int
	now   func() time.Time
}

// NewSelector creates a Selector. limit caps remote listings.
func NewSelector(local *LocalStore, api RemoteAPI, limit int) *Selector {
	return &Selector{local: local, api: api, limit: limit, now: time.Now}
}

// For returns the remote store when session carries a usable token and the
// local store otherwise.
func (s *Selector) For(session *internal.AuthSession) SessionStore {
	if session.Valid(s.now()) {
		return NewRemoteStore(s.api, session.AccessToken, s.limit)
	}
	return s.local
}

// Local returns the guest store
func (s *Selector) Local() *LocalStore {
	return s.local
}
