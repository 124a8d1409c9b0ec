package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Call records one request received by FakeAPI
type Call struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]interface{}
}

// FakeMessage is a message held by FakeAPI
type FakeMessage struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// FakeSession is a session held by FakeAPI
type FakeSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Messages  []FakeMessage `json:"-"`
}

// FakeAPI is an httptest server speaking the chat backend and auth REST
// contracts. Zero-value knobs mean "behave normally".
type FakeAPI struct {
	Server *httptest.Server

	// Token required on bearer endpoints; "" accepts any non-empty token.
	Token string
	// Password accepted by the password grant.
	Password string
	// TokenLifetime of issued access tokens; 0 means one hour.
	TokenLifetime time.Duration

	ChatDelay       time.Duration
	FailChat        bool
	FailLogs        bool
	FailCreate      bool
	FailAppendAfter int // fail every append once this many succeeded; 0 disables
	Intent          string

	mu       sync.Mutex
	calls    []Call
	sessions []*FakeSession
	nextID   int
	appends  int
}

// NewFakeAPI starts a FakeAPI closed on test cleanup
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{Password: "secret", Intent: "CHAT"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat/{$}", f.handleChat)
	mux.HandleFunc("GET /api/v1/logs/{id}", f.handleLog)
	mux.HandleFunc("POST /api/v1/chat-sessions/{$}", f.bearer(f.handleCreate))
	mux.HandleFunc("GET /api/v1/chat-sessions/{$}", f.bearer(f.handleList))
	mux.HandleFunc("GET /api/v1/chat-sessions/{id}", f.bearer(f.handleGet))
	mux.HandleFunc("PUT /api/v1/chat-sessions/{id}", f.bearer(f.handleRename))
	mux.HandleFunc("DELETE /api/v1/chat-sessions/{id}", f.bearer(f.handleDelete))
	mux.HandleFunc("POST /api/v1/chat-sessions/{id}/messages", f.bearer(f.handleAppend))
	mux.HandleFunc("POST /auth/v1/token", f.handleToken)
	mux.HandleFunc("POST /auth/v1/signup", f.handleSignup)
	mux.HandleFunc("POST /auth/v1/logout", f.handleLogout)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server base URL
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// Calls returns a copy of the recorded calls
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns recorded calls matching method and a path prefix
func (f *FakeAPI) CallsTo(method, pathPrefix string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, pathPrefix) {
			out = append(out, c)
		}
	}
	return out
}

// Session returns a copy of the stored session or nil
func (f *FakeAPI) Session(id string) *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == id {
			cp := *s
			cp.Messages = append([]FakeMessage(nil), s.Messages...)
			return &cp
		}
	}
	return nil
}

// SessionCount returns the number of stored sessions
func (f *FakeAPI) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// AddSession seeds a session and returns its id
func (f *FakeAPI) AddSession(title string, updatedAt time.Time, msgs ...FakeMessage) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := &FakeSession{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		Title:     title,
		CreatedAt: updatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: updatedAt.UTC().Format(time.RFC3339),
		Messages:  msgs,
	}
	f.sessions = append([]*FakeSession{s}, f.sessions...)
	return s.ID
}

func (f *FakeAPI) record(r *http.Request) map[string]interface{} {
	var body map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	f.mu.Unlock()
	return body
}

func (f *FakeAPI) bearer(next func(http.ResponseWriter, *http.Request, map[string]interface{})) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || (f.Token != "" && token != f.Token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next(w, r, body)
	}
}

func (f *FakeAPI) handleChat(w http.ResponseWriter, r *http.Request) {
	body := f.record(r)
	if f.ChatDelay > 0 {
		select {
		case <-time.After(f.ChatDelay):
		case <-r.Context().Done():
			return
		}
	}
	if f.FailChat {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
		return
	}
	msg, _ := body["message"].(string)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"response": "echo: " + msg,
		"log_id":   "log-1",
		"intent":   f.Intent,
		"actions":  []string{},
	})
}

func (f *FakeAPI) handleLog(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	if f.FailLogs {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Log not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": r.PathValue("id"),
		"details": map[string]interface{}{
			"steps": []map[string]interface{}{
				{"action": "classify", "result": "ok"},
				{"action": "respond", "result": map[string]string{"status": "done"}},
			},
		},
	})
}

func (f *FakeAPI) handleCreate(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
	if f.FailCreate {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to create session"})
		return
	}
	title, _ := body["title"].(string)
	if title == "" {
		title = "New Conversation"
	}
	id := f.AddSession(title, time.Now())
	s := f.Session(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": s.ID, "title": s.Title, "created_at": s.CreatedAt, "updated_at": s.UpdatedAt, "message_count": 0,
	})
}

func (f *FakeAPI) handleList(w http.ResponseWriter, _ *http.Request, _ map[string]interface{}) {
	f.mu.Lock()
	list := make([]map[string]interface{}, 0, len(f.sessions))
	for _, s := range f.sessions {
		list = append(list, map[string]interface{}{
			"id": s.ID, "title": s.Title, "created_at": s.CreatedAt, "updated_at": s.UpdatedAt,
			"message_count": len(s.Messages),
		})
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list, "total": len(list)})
}

func (f *FakeAPI) handleGet(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
	s := f.Session(r.PathValue("id"))
	if s == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": s.ID, "title": s.Title, "created_at": s.CreatedAt, "updated_at": s.UpdatedAt,
		"messages": s.Messages,
	})
}

func (f *FakeAPI) handleRename(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == r.PathValue("id") {
			s.Title, _ = body["title"].(string)
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": s.ID, "title": s.Title})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
}

func (f *FakeAPI) handleDelete(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.ID == r.PathValue("id") {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
}

func (f *FakeAPI) handleAppend(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAppendAfter > 0 && f.appends >= f.FailAppendAfter {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to add message"})
		return
	}
	for _, s := range f.sessions {
		if s.ID == r.PathValue("id") {
			f.appends++
			text, _ := body["text"].(string)
			sender, _ := body["sender"].(string)
			s.Messages = append(s.Messages, FakeMessage{
				ID:     fmt.Sprintf("%s-m%d", s.ID, len(s.Messages)+1),
				Text:   text,
				Sender: sender,
			})
			s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Message added successfully"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
}

func (f *FakeAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	body := f.record(r)
	switch r.URL.Query().Get("grant_type") {
	case "password":
		if body["password"] != f.Password {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid login credentials"})
			return
		}
		email, _ := body["email"].(string)
		writeJSON(w, http.StatusOK, f.tokenResponse("access-1", email))
	case "refresh_token":
		if body["refresh_token"] != "refresh-1" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, f.tokenResponse("access-2", "user@example.com"))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *FakeAPI) handleSignup(w http.ResponseWriter, r *http.Request) {
	body := f.record(r)
	email, _ := body["email"].(string)
	writeJSON(w, http.StatusOK, f.tokenResponse("access-1", email))
}

func (f *FakeAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) tokenResponse(access, email string) map[string]interface{} {
	lifetime := f.TokenLifetime
	if lifetime == 0 {
		lifetime = time.Hour
	}
	return map[string]interface{}{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int(lifetime.Seconds()),
		"expires_at":    time.Now().Add(lifetime).Unix(),
		"refresh_token": "refresh-1",
		"user":          map[string]interface{}{"id": "user-1", "email": email},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
