package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/iksnae/chatsync/internal"
)

// LocalStore keeps every guest session as one JSON list under
// internal.KeyChatSessions, most recent first. Each mutation is a
// read-modify-write of the whole list with a single Save.
type LocalStore struct {
	kv    internal.KV
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewLocalStore creates a LocalStore over kv
func NewLocalStore(kv internal.KV) *LocalStore {
	return &LocalStore{kv: kv, now: time.Now, newID: internal.NewLocalSessionID}
}

func (s *LocalStore) Mode() internal.Mode {
	return internal.ModeGuest
}

// List returns the stored sessions; an absent key is an empty list
func (s *LocalStore) List(ctx context.Context) ([]internal.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the session with id or internal.ErrNotFound
func (s *LocalStore) Get(ctx context.Context, id string) (*internal.Session, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("local session %s: %w", id, internal.ErrNotFound)
}

// Save replaces the bound entry in place, or mints a local_ id and prepends
// a new entry when req.ID is empty or no longer stored.
func (s *LocalStore) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		return SaveResult{ID: req.ID, Synced: req.Synced}, err
	}

	now := s.now()
	messages := internal.CloneMessages(req.Messages)
	id := req.ID
	replaced := false
	if id != "" {
		for i := range sessions {
			if sessions[i].ID == id {
				sessions[i].Messages = messages
				sessions[i].UpdatedAt = now
				replaced = true
				break
			}
		}
	}
	if !replaced {
		id = s.newID()
		title := req.Title
		if title == "" {
			title = internal.DeriveTitle(messages)
		}
		entry := internal.Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now, Messages: messages}
		sessions = append([]internal.Session{entry}, sessions...)
	}

	if err := s.write(ctx, sessions); err != nil {
		return SaveResult{ID: req.ID, Synced: req.Synced}, err
	}
	internal.LogDebug("local session %s saved with %d messages", id, len(messages))
	return SaveResult{ID: id, Synced: len(messages)}, nil
}

// Delete removes the session with id
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	return s.update(ctx, id, func(sessions []internal.Session, i int) []internal.Session {
		return append(sessions[:i], sessions[i+1:]...)
	})
}

// Rename sets the title of the session with id
func (s *LocalStore) Rename(ctx context.Context, id, title string) error {
	now := s.now()
	return s.update(ctx, id, func(sessions []internal.Session, i int) []internal.Session {
		sessions[i].Title = title
		sessions[i].UpdatedAt = now
		return sessions
	})
}

// ReplaceAll overwrites the stored list in one write
func (s *LocalStore) ReplaceAll(ctx context.Context, sessions []internal.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, sessions)
}

func (s *LocalStore) update(ctx context.Context, id string, fn func([]internal.Session, int) []internal.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return s.write(ctx, fn(sessions, i))
		}
	}
	return fmt.Errorf("local session %s: %w", id, internal.ErrNotFound)
}

func (s *LocalStore) load(ctx context.Context) ([]internal.Session, error) {
	raw, ok, err := s.kv.Load(ctx, internal.KeyChatSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to read local sessions: %w", err)
	}
	if !ok || raw == "" {
		return []internal.Session{}, nil
	}
	var sessions []internal.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, &internal.ParseError{Source: "local", Key: internal.KeyChatSessions, Err: err}
	}
	if sessions == nil {
		sessions = []internal.Session{}
	}
	return sessions, nil
}

func (s *LocalStore) write(ctx context.Context, sessions []internal.Session) error {
	if sessions == nil {
		sessions = []internal.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal local sessions: %w", err)
	}
	if err := s.kv.Save(ctx, internal.KeyChatSessions, string(data)); err != nil {
		return fmt.Errorf("failed to write local sessions: %w", err)
	}
	return nil
}
