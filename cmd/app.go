package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/api"
	"github.com/iksnae/chatsync/internal/auth"
	"github.com/iksnae/chatsync/internal/conversation"
	"github.com/iksnae/chatsync/internal/history"
	"github.com/iksnae/chatsync/internal/store"
)

// app holds the components a command works with
type app struct {
	storage  *internal.Storage
	auth     *auth.State
	client   *api.Client
	local    *store.LocalStore
	selector *store.Selector
	cache    *internal.CacheManager
}

// newApp opens the local store and restores the auth session
func newApp(ctx context.Context) (*app, error) {
	storage, err := internal.OpenStorage(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	a := &app{
		storage: storage,
		client:  api.NewClient(cfg.APIURL, cfg.RequestTimeout),
		local:   store.NewLocalStore(storage),
		cache:   internal.NewCacheManager(cfg.CacheDir),
	}
	a.selector = store.NewSelector(a.local, a.client, cfg.ListLimit)
	a.auth = auth.NewState(a.provider())
	if err := a.auth.Refresh(ctx); err != nil {
		internal.LogWarn("Continuing as guest: %v", err)
	}
	internal.LogDebug("persistence mode: %s", a.auth.Mode())
	return a, nil
}

func (a *app) provider() auth.Provider {
	switch {
	case cfg.AccessToken != "":
		return auth.NewStatic(cfg.AccessToken)
	case cfg.AuthConfigured():
		return auth.NewGoTrue(cfg.SupabaseURL, cfg.SupabaseAnonKey, a.storage, cfg.RequestTimeout)
	default:
		return auth.NewGuest()
	}
}

// Close releases the local store
func (a *app) Close() {
	a.auth.Close()
	if err := a.storage.Close(); err != nil {
		internal.LogWarn("Failed to close local store: %v", err)
	}
}

// store returns the store for the current auth session, refreshing an
// expiring token first
func (a *app) store(ctx context.Context) (store.SessionStore, error) {
	session, err := a.auth.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth session: %w", err)
	}
	return a.selector.For(session), nil
}

// remote returns the signed-in user's store or an auth error
func (a *app) remote(ctx context.Context) (store.SessionStore, error) {
	st, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	if st.Mode() != internal.ModeAuthenticated {
		return nil, fmt.Errorf("this command needs a signed-in user: %w", internal.ErrAuthRequired)
	}
	return st, nil
}

func (a *app) history() *history.View {
	return history.NewView(a.auth, a.selector, a.cache, cfg.APIURL)
}

func (a *app) shell() *conversation.Shell {
	return conversation.NewShell(conversation.NewState(), a.client, a.auth, a.selector, conversation.Options{
		HistoryTurns:   cfg.HistoryTurns,
		RequestTimeout: cfg.RequestTimeout,
		TurnTimeout:    cfg.ChatTimeout,
	})
}

// userID returns the signed-in user's id, "" for guests
func (a *app) userID() string {
	if s := a.auth.Current(); s != nil && s.User != nil {
		return s.User.ID
	}
	return ""
}

// getSession fetches one conversation from the active store. Remote
// transcripts are cached and served from the cache when the backend is
// unreachable.
func (a *app) getSession(ctx context.Context, id string) (*internal.Session, error) {
	st, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	session, err := st.Get(ctx, id)
	if st.Mode() != internal.ModeAuthenticated {
		return session, err
	}
	if err == nil {
		if cerr := a.cache.SaveSession(cfg.APIURL, a.userID(), session); cerr != nil {
			internal.LogDebug("session %s not cached: %v", id, cerr)
		}
		return session, nil
	}
	if !errors.Is(err, internal.ErrTransport) || !a.cache.IsCacheValid(cfg.APIURL, a.userID()) {
		return nil, err
	}
	cached, cerr := a.cache.LoadSession(cfg.APIURL, a.userID(), id)
	if cerr != nil {
		return nil, err
	}
	internal.LogWarn("Backend unreachable, showing cached copy of %s", id)
	return cached, nil
}
