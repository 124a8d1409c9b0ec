package conversation

import (
	"context"
	"fmt"

	"github.com/iksnae/chatsync/internal"
)

// Loader installs a persisted conversation into the live state
type Loader struct {
	state    *State
	auth     AuthSource
	selector StoreSelector
}

// NewLoader creates a Loader
func NewLoader(state *State, auth AuthSource, selector StoreSelector) *Loader {
	return &Loader{state: state, auth: auth, selector: selector}
}

// Load fetches session id from the active store and binds the conversation
// to it. On any failure the live state is left untouched.
func (l *Loader) Load(ctx context.Context, id string) (*internal.Session, error) {
	current, err := l.auth.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth session: %w", err)
	}
	st := l.selector.For(current)
	session, err := st.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if session.ID == "" {
		session.ID = id
	}
	l.state.Install(session.Messages, Binding{ID: session.ID, Mode: st.Mode(), Synced: len(session.Messages)})
	return session, nil
}
