package auth

import (
	"context"
	"sync"
	"time"

	"github.com/iksnae/chatsync/internal"
)

// State is the read-mostly mirror of the provider's session
type State struct {
	provider    Provider
	now         func() time.Time
	unsubscribe func()

	mu      sync.RWMutex
	current *internal.AuthSession
}

// NewState subscribes to provider changes
func NewState(provider Provider) *State {
	s := &State{provider: provider, now: time.Now}
	s.unsubscribe = provider.OnChange(s.set)
	return s
}

// Refresh pulls the provider's current session. On error the state falls
// back to guest.
func (s *State) Refresh(ctx context.Context) error {
	session, err := s.provider.Session(ctx)
	s.set(session)
	return err
}

// Session asks the provider for the session in force now, so an expired
// token is refreshed (or dropped) before it is used, and mirrors the result.
// On error the mirror keeps its previous value.
func (s *State) Session(ctx context.Context) (*internal.AuthSession, error) {
	session, err := s.provider.Session(ctx)
	if err != nil {
		return nil, err
	}
	s.set(session)
	return session, nil
}

// Provider returns the underlying provider
func (s *State) Provider() Provider {
	return s.provider
}

// Current returns the mirrored session, nil for guests
func (s *State) Current() *internal.AuthSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether a usable token is held
func (s *State) IsAuthenticated() bool {
	return s.Current().Valid(s.now())
}

// Mode returns the persistence mode the current session selects
func (s *State) Mode() internal.Mode {
	return s.Current().Mode(s.now())
}

// Token returns the bearer token or ""
func (s *State) Token() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Current().Token()
}

// Close stops mirroring the provider
func (s *State) Close() {
	s.unsubscribe()
}

func (s *State) set(session *internal.AuthSession) {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()
}
