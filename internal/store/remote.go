package store

import (
	"context"
	"fmt"

	"github.com/iksnae/chatsync/internal"
)

// RemoteAPI is the slice of the backend client the remote store needs
type RemoteAPI interface {
	CreateSession(ctx context.Context, token, title string) (string, error)
	AppendMessage(ctx context.Context, token, sessionID string, msg internal.Message) error
	ListSessions(ctx context.Context, token string, limit int) ([]internal.Session, error)
	GetSession(ctx context.Context, token, sessionID string) (*internal.Session, error)
	RenameSession(ctx context.Context, token, sessionID, title string) error
	DeleteSession(ctx context.Context, token, sessionID string) error
}

// RemoteStore persists sessions through the backend with one bearer token
type RemoteStore struct {
	api   RemoteAPI
	token string
	limit int
}

// NewRemoteStore creates a RemoteStore
func NewRemoteStore(api RemoteAPI, token string, limit int) *RemoteStore {
	return &RemoteStore{api: api, token: token, limit: limit}
}

func (s *RemoteStore) Mode() internal.Mode {
	return internal.ModeAuthenticated
}

func (s *RemoteStore) List(ctx context.Context) ([]internal.Session, error) {
	return s.api.ListSessions(ctx, s.token, s.limit)
}

func (s *RemoteStore) Get(ctx context.Context, id string) (*internal.Session, error) {
	return s.api.GetSession(ctx, s.token, id)
}

// Save creates the session when unbound, then appends every message past
// req.Synced one at a time, in order. The returned cursor stops at the last
// message the server accepted.
func (s *RemoteStore) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if s.token == "" {
		return SaveResult{ID: req.ID, Synced: req.Synced}, internal.ErrAuthRequired
	}

	res := SaveResult{ID: req.ID, Synced: req.Synced}
	if res.ID == "" {
		title := req.Title
		if title == "" {
			title = internal.DeriveTitle(req.Messages)
		}
		id, err := s.api.CreateSession(ctx, s.token, title)
		if err != nil {
			return res, fmt.Errorf("failed to create remote session: %w", err)
		}
		internal.LogDebug("created remote session %s", id)
		res = SaveResult{ID: id}
	}
	switch {
	case res.Synced < 0:
		res.Synced = 0
	case res.Synced > len(req.Messages):
		res.Synced = len(req.Messages)
	}

	for i := res.Synced; i < len(req.Messages); i++ {
		if err := s.api.AppendMessage(ctx, s.token, res.ID, req.Messages[i]); err != nil {
			return res, fmt.Errorf("failed to append message %d/%d to %s: %w", i+1, len(req.Messages), res.ID, err)
		}
		res.Synced = i + 1
	}
	return res, nil
}

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	return s.api.DeleteSession(ctx, s.token, id)
}

func (s *RemoteStore) Rename(ctx context.Context, id, title string) error {
	return s.api.RenameSession(ctx, s.token, id, title)
}
