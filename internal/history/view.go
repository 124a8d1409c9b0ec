// Package history lists, searches, groups and deletes persisted
// conversations for the active auth mode.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/store"
)

var (
	ErrNoPendingDelete = errors.New("no deletion pending")
	ErrEmptyTitle      = errors.New("title is empty")
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

// View is the chat history as last listed from the active store.
// Remote listings are mirrored into an optional offline cache and served
// from it when the backend cannot be reached.
type View struct {
	auth     AuthSource
	selector StoreSelector
	cache    *internal.CacheManager
	apiURL   string
	now      func() time.Time

	mu        sync.Mutex
	sessions  []internal.Session
	mode      internal.Mode
	pending   string
	offline   bool
	fetchedAt time.Time
}

// NewView creates a View. cache may be nil.
func NewView(auth AuthSource, selector StoreSelector, cache *internal.CacheManager, apiURL string) *View {
	return &View{
		auth:     auth,
		selector: selector,
		cache:    cache,
		apiURL:   apiURL,
		now:      time.Now,
	}
}

// Refresh lists sessions from the active store. A remote listing that fails
// with a transport error falls back to the offline cache when one matches.
func (v *View) Refresh(ctx context.Context) error {
	current, err := v.auth.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve auth session: %w", err)
	}
	st := v.selector.For(current)
	mode := st.Mode()

	sessions, err := st.List(ctx)
	if err != nil {
		if mode == internal.ModeAuthenticated && errors.Is(err, internal.ErrTransport) {
			if cached, at, ok := v.fromCache(current); ok {
				internal.LogWarn("backend unreachable, showing history cached at %s", at.Format(time.RFC3339))
				v.install(cached, mode, true, at)
				return nil
			}
		}
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	now := v.now()
	if mode == internal.ModeAuthenticated && v.cache != nil {
		if err := v.cache.SaveListing(v.apiURL, userID(current), sessions, now); err != nil {
			internal.LogDebug("history cache not updated: %v", err)
		}
	}
	v.install(sessions, mode, false, now)
	return nil
}

// Sessions returns the last listing in store order
func (v *View) Sessions() []internal.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]internal.Session, len(v.sessions))
	copy(out, v.sessions)
	return out
}

// Mode returns the store mode of the last listing
func (v *View) Mode() internal.Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// Offline reports whether the last listing came from the cache and when it
// was fetched
func (v *View) Offline() (bool, time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offline, v.fetchedAt
}

// Groups filters the listing by title and buckets it by recency
func (v *View) Groups(query string) []internal.Group {
	return internal.GroupByRecency(internal.FilterByTitle(v.Sessions(), strings.TrimSpace(query)), v.now())
}

// RequestDelete marks id for deletion. Nothing is removed until
// ConfirmDelete.
func (v *View) RequestDelete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if indexOf(v.sessions, id) < 0 {
		return fmt.Errorf("session %s: %w", id, internal.ErrNotFound)
	}
	v.pending = id
	return nil
}

// PendingDelete returns the id awaiting confirmation, "" if none
func (v *View) PendingDelete() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// CancelDelete drops the pending deletion
func (v *View) CancelDelete() {
	v.mu.Lock()
	v.pending = ""
	v.mu.Unlock()
}

// ConfirmDelete deletes the pending session. Remote deletions are followed
// by a fresh listing; guest deletions rewrite the local list in one write.
// The live conversation's binding is not touched.
func (v *View) ConfirmDelete(ctx context.Context) error {
	v.mu.Lock()
	id := v.pending
	v.pending = ""
	v.mu.Unlock()
	if id == "" {
		return ErrNoPendingDelete
	}

	current, err := v.auth.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve auth session: %w", err)
	}
	st := v.selector.For(current)
	if st.Mode() != v.Mode() {
		if err := v.Refresh(ctx); err != nil {
			return err
		}
	}

	if replacer, ok := st.(store.Replacer); ok {
		return v.deleteLocal(ctx, replacer, id)
	}

	if err := st.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if v.cache != nil {
		if err := v.cache.DropSession(v.apiURL, userID(current), id); err != nil {
			internal.LogDebug("cached session %s not dropped: %v", id, err)
		}
	}
	internal.LogInfo("deleted session %s", id)
	return v.Refresh(ctx)
}

func (v *View) deleteLocal(ctx context.Context, replacer store.Replacer, id string) error {
	v.mu.Lock()
	kept := make([]internal.Session, 0, len(v.sessions))
	for _, s := range v.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	v.mu.Unlock()

	if err := replacer.ReplaceAll(ctx, kept); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	v.mu.Lock()
	v.sessions = kept
	v.mu.Unlock()
	internal.LogInfo("deleted session %s", id)
	return nil
}

// Rename retitles a session in the active store and in the listing
func (v *View) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	st, err := v.store(ctx)
	if err != nil {
		return err
	}
	if err := st.Rename(ctx, id, title); err != nil {
		return fmt.Errorf("failed to rename session %s: %w", id, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if i := indexOf(v.sessions, id); i >= 0 {
		v.sessions[i].Title = title
	}
	return nil
}

func (v *View) store(ctx context.Context) (store.SessionStore, error) {
	current, err := v.auth.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth session: %w", err)
	}
	return v.selector.For(current), nil
}

func (v *View) install(sessions []internal.Session, mode internal.Mode, offline bool, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessions = sessions
	v.mode = mode
	v.offline = offline
	v.fetchedAt = at
	if v.pending != "" && indexOf(sessions, v.pending) < 0 {
		v.pending = ""
	}
}

func (v *View) fromCache(current *internal.AuthSession) ([]internal.Session, time.Time, bool) {
	if v.cache == nil {
		return nil, time.Time{}, false
	}
	sessions, at, err := v.cache.LoadListing(v.apiURL, userID(current))
	if err != nil {
		internal.LogDebug("no usable history cache: %v", err)
		return nil, time.Time{}, false
	}
	return sessions, at, true
}

func userID(session *internal.AuthSession) string {
	if session == nil || session.User == nil {
		return ""
	}
	return session.User.ID
}

func indexOf(sessions []internal.Session, id string) int {
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}
