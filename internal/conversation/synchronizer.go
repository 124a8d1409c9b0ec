package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/store"
)

// AuthSource yields the auth session in force, refreshing it when needed.
// nil means guest.
type AuthSource interface {
	Session(ctx context.Context) (*internal.AuthSession, error)
}

// StoreSelector picks the store for an auth session
type StoreSelector interface {
	For(session *internal.AuthSession) store.SessionStore
}

// Synchronizer persists the live conversation after each assistant reply
type Synchronizer struct {
	state    *State
	auth     AuthSource
	selector StoreSelector

	mu         sync.Mutex
	handled    int
	handledGen int
}

// NewSynchronizer creates a Synchronizer
func NewSynchronizer(state *State, auth AuthSource, selector StoreSelector) *Synchronizer {
	return &Synchronizer{state: state, auth: auth, selector: selector, handledGen: -1}
}

// OnAssistantMessage persists the transcript if an assistant message arrived
// since the last call. Calls are serialized. A guest binding is ignored once
// signed in, so the remote store gets a fresh record. A signed-in binding
// without a usable token fails with ErrAuthRequired and is kept for the next
// sync after sign-in.
func (s *Synchronizer) OnAssistantMessage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state.Snapshot()
	if snap.AIEdges == 0 || (snap.Generation == s.handledGen && snap.AIEdges <= s.handled) {
		return nil
	}
	s.handled, s.handledGen = snap.AIEdges, snap.Generation

	session, err := s.auth.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve auth session: %w", err)
	}
	st := s.selector.For(session)
	mode := st.Mode()
	if snap.Binding.Bound() && snap.Binding.Mode == internal.ModeAuthenticated && mode != internal.ModeAuthenticated {
		return fmt.Errorf("session %s is not saved: %w", snap.Binding.ID, internal.ErrAuthRequired)
	}
	req := store.SaveRequest{
		Title:    internal.DeriveTitle(snap.Messages),
		Messages: snap.Messages,
	}
	if snap.Binding.Bound() && snap.Binding.Mode == mode {
		req.ID = snap.Binding.ID
		req.Synced = snap.Binding.Synced
	} else if snap.Binding.Bound() {
		internal.LogDebug("binding %s belongs to %s mode, starting a new %s record", snap.Binding.ID, snap.Binding.Mode, mode)
	}

	res, err := st.Save(ctx, req)
	if res.ID != "" && (res.ID != req.ID || res.Synced != req.Synced) {
		s.state.BindIf(snap.Generation, Binding{ID: res.ID, Mode: mode, Synced: res.Synced})
	}
	if err != nil {
		return err
	}
	internal.LogDebug("synced %d messages to %s session %s", res.Synced, mode, res.ID)
	return nil
}
