package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Keys of the local key-value store
const (
	KeyChatSessions   = "chat_sessions"
	KeyHasSeenWelcome = "hasSeenWelcome"
	KeyAuthSession    = "auth_session"
)

// KV is the local persistence port: whole values in, whole values out.
type KV interface {
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Storage is the SQLite-backed KV
type Storage struct {
	db   *sql.DB
	path string
}

// NewStorage creates a new Storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// OpenStorage opens the database at path and wraps it
func OpenStorage(path string) (*Storage, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, path: path}, nil
}

// Path returns the database path, empty when built from an existing *sql.DB
func (s *Storage) Path() string {
	return s.path
}

// DB exposes the underlying handle for diagnostics
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Load returns the value stored under key
func (s *Storage) Load(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Path: key, Op: "load", Err: err}
	}
	if !value.Valid {
		return "", false, nil
	}
	return value.String, true, nil
}

// Save stores value under key in a single statement
func (s *Storage) Save(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return &StorageError{Path: key, Op: "save", Err: err}
	}
	return nil
}

// Remove deletes key; removing a missing key is not an error
func (s *Storage) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return &StorageError{Path: key, Op: "remove", Err: err}
	}
	return nil
}

// Keys lists stored keys
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	pairs, err := QueryKV(ctx, s.db, "%")
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, p.Key)
	}
	return keys, nil
}
