package internal

import (
	"errors"
	"fmt"
)

// Failure kinds shared by the local and remote session stores.
var (
	ErrTransport         = errors.New("transport failure")
	ErrAuthRequired      = errors.New("authentication required")
	ErrNotFound          = errors.New("not found")
	ErrMalformedResponse = errors.New("malformed response")
)

// StorageError represents errors accessing the local store
type StorageError struct {
	Path string
	Op   string // "open", "load", "save", "remove"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing persisted or received data
type ParseError struct {
	Source string // "local", "remote"
	Key    string // storage key or request path
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports ParseError as a malformed response so callers can classify it
// without knowing where the bytes came from.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// APIError represents a failed call to the chat backend
type APIError struct {
	Op         string // "POST /api/v1/chat-sessions/"
	StatusCode int    // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api error [%s]: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("api error [%s] status %d: %v: %s", e.Op, e.StatusCode, e.Err, e.Body)
	}
	return fmt.Sprintf("api error [%s] status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsAuthRequired reports whether err means the user has to sign in again.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}
