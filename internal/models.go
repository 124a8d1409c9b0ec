package internal

import (
	"time"
)

// Mode is the persistence mode chosen from the auth session
type Mode string

const (
	ModeGuest         Mode = "guest"
	ModeAuthenticated Mode = "authenticated"
)

// User is the identity returned by the auth platform
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// AuthSession mirrors the auth platform's session. A nil *AuthSession or one
// without an access token means guest mode.
type AuthSession struct {
	User         *User     `json:"user,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the session carries a usable bearer token at now.
// A zero ExpiresAt never expires.
func (a *AuthSession) Valid(now time.Time) bool {
	if a == nil || a.AccessToken == "" {
		return false
	}
	return a.ExpiresAt.IsZero() || now.Before(a.ExpiresAt)
}

// Mode returns the persistence mode this session selects at now
func (a *AuthSession) Mode(now time.Time) Mode {
	if a.Valid(now) {
		return ModeAuthenticated
	}
	return ModeGuest
}

// Token returns the access token or "" for a nil session
func (a *AuthSession) Token() string {
	if a == nil {
		return ""
	}
	return a.AccessToken
}

// LogType classifies a diagnostic log entry
type LogType string

const (
	LogTypeThinking LogType = "thinking"
	LogTypeAction   LogType = "action"
	LogTypeSuccess  LogType = "success"
	LogTypeError    LogType = "error"
)

// LogEntry is one line of the per-conversation diagnostic log
type LogEntry struct {
	ID      int64   `json:"id"`
	Type    LogType `json:"type"`
	Text    string  `json:"text"`
	Details string  `json:"details,omitempty"`
}

// Group is one recency bucket of the chat history
type Group struct {
	Label    string    `json:"label"`
	Sessions []Session `json:"sessions"`
}
