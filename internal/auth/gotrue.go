package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/iksnae/chatsync/internal"
)

// expirySkew refreshes tokens slightly before they actually expire
const expirySkew = 30 * time.Second

// GoTrue signs in against a Supabase-style auth REST API and persists the
// session in the local KV under internal.KeyAuthSession.
type GoTrue struct {
	notifier

	baseURL    string
	anonKey    string
	httpClient *http.Client
	kv         internal.KV
	now        func() time.Time

	mu      sync.Mutex
	current *internal.AuthSession
	loaded  bool
}

// NewGoTrue creates a GoTrue provider
func NewGoTrue(baseURL, anonKey string, kv internal.KV, timeout time.Duration) *GoTrue {
	return &GoTrue{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
		kv:         kv,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			Username string `json:"username"`
		} `json:"user_metadata"`
	} `json:"user"`
	// signup without auto-confirm returns the bare user
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

// Session restores the persisted session and refreshes it when expired.
// A rejected refresh signs the user out; a failed one keeps the stored
// session for the next attempt and reports the error.
func (g *GoTrue) Session(ctx context.Context) (*internal.AuthSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.loaded {
		if err := g.restoreLocked(ctx); err != nil {
			return nil, err
		}
	}
	if g.current == nil {
		return nil, nil
	}
	if g.current.ExpiresAt.IsZero() || g.now().Add(expirySkew).Before(g.current.ExpiresAt) {
		return g.current, nil
	}
	if g.current.RefreshToken == "" {
		internal.LogInfo("auth session expired")
		return nil, g.clearLocked(ctx)
	}

	refreshed, err := g.grant(ctx, "refresh_token", map[string]string{"refresh_token": g.current.RefreshToken})
	if errors.Is(err, ErrInvalidCredentials) || internal.IsAuthRequired(err) {
		internal.LogWarn("auth session refresh rejected, signing out")
		return nil, g.clearLocked(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	if err := g.setLocked(ctx, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// SignIn uses the password grant
func (g *GoTrue) SignIn(ctx context.Context, email, password string) (*internal.AuthSession, error) {
	session, err := g.grant(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = true
	if err := g.setLocked(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SignUp registers an account. Platforms that require email confirmation
// return ErrConfirmationPending and no session.
func (g *GoTrue) SignUp(ctx context.Context, email, password, username string) (*internal.AuthSession, error) {
	body := map[string]interface{}{"email": email, "password": password}
	if username != "" {
		body["data"] = map[string]string{"username": username}
	}
	var resp tokenResponse
	if err := g.post(ctx, "/auth/v1/signup", "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, ErrConfirmationPending
	}
	session := g.toSession(resp)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = true
	if err := g.setLocked(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut revokes the session server-side when possible and always forgets
// it locally.
func (g *GoTrue) SignOut(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.loaded {
		_ = g.restoreLocked(ctx)
	}
	if token := g.current.Token(); token != "" {
		if err := g.post(ctx, "/auth/v1/logout", token, nil, nil); err != nil {
			internal.LogWarn("server-side sign out failed: %v", err)
		}
	}
	return g.clearLocked(ctx)
}

func (g *GoTrue) restoreLocked(ctx context.Context) error {
	raw, ok, err := g.kv.Load(ctx, internal.KeyAuthSession)
	if err != nil {
		return fmt.Errorf("failed to restore auth session: %w", err)
	}
	g.loaded = true
	if !ok || raw == "" {
		return nil
	}
	var s internal.AuthSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		internal.LogWarn("discarding unreadable auth session: %v", err)
		return nil
	}
	if s.AccessToken != "" {
		g.current = &s
	}
	return nil
}

func (g *GoTrue) setLocked(ctx context.Context, s *internal.AuthSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal auth session: %w", err)
	}
	if err := g.kv.Save(ctx, internal.KeyAuthSession, string(data)); err != nil {
		return fmt.Errorf("failed to persist auth session: %w", err)
	}
	g.current = s
	g.notify(s)
	return nil
}

func (g *GoTrue) clearLocked(ctx context.Context) error {
	had := g.current != nil
	g.current = nil
	if err := g.kv.Remove(ctx, internal.KeyAuthSession); err != nil {
		return fmt.Errorf("failed to clear auth session: %w", err)
	}
	if had {
		g.notify(nil)
	}
	return nil
}

func (g *GoTrue) grant(ctx context.Context, grantType string, body map[string]string) (*internal.AuthSession, error) {
	var resp tokenResponse
	if err := g.post(ctx, "/auth/v1/token?grant_type="+grantType, "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &internal.ParseError{Source: "auth", Key: grantType, Err: errors.New("response carries no access token")}
	}
	return g.toSession(resp), nil
}

func (g *GoTrue) toSession(resp tokenResponse) *internal.AuthSession {
	s := &internal.AuthSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		s.ExpiresAt = g.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.User != nil {
		s.User = &internal.User{ID: resp.User.ID, Email: resp.User.Email, Username: resp.User.UserMetadata.Username}
	}
	return s
}

func (g *GoTrue) post(ctx context.Context, path, token string, body, out interface{}) error {
	op := http.MethodPost + " " + path
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &internal.APIError{Op: op, Err: fmt.Errorf("%w: %w", internal.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &internal.APIError{Op: op, StatusCode: resp.StatusCode, Body: describe(data), Err: classify(resp.StatusCode)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &internal.ParseError{Source: "auth", Key: path, Err: err}
	}
	return nil
}

func classify(code int) error {
	switch {
	case code == http.StatusBadRequest:
		return ErrInvalidCredentials
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return internal.ErrAuthRequired
	default:
		return internal.ErrTransport
	}
}

func describe(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case e.ErrorDescription != "":
			return e.ErrorDescription
		case e.Msg != "":
			return e.Msg
		case e.Error != "":
			return e.Error
		}
	}
	return string(bytes.TrimSpace(body))
}
