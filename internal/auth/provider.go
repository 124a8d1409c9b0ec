// Package auth mirrors the external auth platform's session.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/iksnae/chatsync/internal"
)

var (
	ErrNotConfigured       = errors.New("no auth platform configured")
	ErrNotSupported        = errors.New("operation not supported by this auth provider")
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrConfirmationPending = errors.New("account created, confirm the email address before signing in")
)

// Provider is the auth platform port
type Provider interface {
	// Session returns the current session, restoring or refreshing it as
	// needed. nil means guest.
	Session(ctx context.Context) (*internal.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*internal.AuthSession, error)
	SignUp(ctx context.Context, email, password, username string) (*internal.AuthSession, error)
	SignOut(ctx context.Context) error
	// OnChange registers fn for every session change and returns a function
	// that removes it.
	OnChange(fn func(*internal.AuthSession)) (unsubscribe func())
}

// notifier fans session changes out to subscribers
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(*internal.AuthSession)
}

func (n *notifier) OnChange(fn func(*internal.AuthSession)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(*internal.AuthSession))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) notify(s *internal.AuthSession) {
	n.mu.Lock()
	subs := make([]func(*internal.AuthSession), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Guest is the provider used when no auth platform is configured
type Guest struct {
	notifier
}

// NewGuest creates a guest-only provider
func NewGuest() *Guest {
	return &Guest{}
}

func (g *Guest) Session(context.Context) (*internal.AuthSession, error) {
	return nil, nil
}

func (g *Guest) SignIn(context.Context, string, string) (*internal.AuthSession, error) {
	return nil, ErrNotConfigured
}

func (g *Guest) SignUp(context.Context, string, string, string) (*internal.AuthSession, error) {
	return nil, ErrNotConfigured
}

func (g *Guest) SignOut(context.Context) error {
	return nil
}

// Static serves a pre-issued access token
type Static struct {
	notifier
	mu      sync.Mutex
	session *internal.AuthSession
}

// NewStatic creates a provider for token; an empty token behaves as guest
func NewStatic(token string) *Static {
	s := &Static{}
	if token != "" {
		s.session = &internal.AuthSession{AccessToken: token}
	}
	return s
}

func (s *Static) Session(context.Context) (*internal.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *Static) SignIn(context.Context, string, string) (*internal.AuthSession, error) {
	return nil, ErrNotSupported
}

func (s *Static) SignUp(context.Context, string, string, string) (*internal.AuthSession, error) {
	return nil, ErrNotSupported
}

// SignOut forgets the token for the rest of the process
func (s *Static) SignOut(context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.notify(nil)
	return nil
}
