package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iksnae/chatsync/internal"
)

const maxErrorBody = 512

// Client talks to the chat backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a new backend client. timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one chat turn
func (c *Client) Chat(ctx context.Context, message string, history []HistoryTurn) (*ChatResponse, error) {
	if history == nil {
		history = []HistoryTurn{}
	}
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/", "", ChatRequest{Message: message, History: history}, &resp); err != nil {
		return nil, err
	}
	if resp.Intent == "" {
		resp.Intent = "CHAT"
	}
	return &resp, nil
}

// GetLog fetches the execution log of a chat turn
func (c *Client) GetLog(ctx context.Context, logID string) (*ExecutionLog, error) {
	var log ExecutionLog
	if err := c.do(ctx, http.MethodGet, "/api/v1/logs/"+url.PathEscape(logID), "", nil, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// CreateSession creates a remote session and returns its id
func (c *Client) CreateSession(ctx context.Context, token, title string) (string, error) {
	var created remoteSession
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat-sessions/", token, createSessionRequest{Title: title}, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &internal.APIError{
			Op:  "POST /api/v1/chat-sessions/",
			Err: &internal.ParseError{Source: "remote", Key: "/api/v1/chat-sessions/", Err: errors.New("response carries no session id")},
		}
	}
	return string(created.ID), nil
}

// AppendMessage appends one message to a remote session
func (c *Client) AppendMessage(ctx context.Context, token, sessionID string, msg internal.Message) error {
	path := "/api/v1/chat-sessions/" + url.PathEscape(sessionID) + "/messages"
	return c.do(ctx, http.MethodPost, path, token, appendMessageRequest{Text: msg.Text, Sender: string(msg.Sender)}, nil)
}

// ListSessions lists the caller's sessions, most recent first. limit <= 0
// leaves the server default.
func (c *Client) ListSessions(ctx context.Context, token string, limit int) ([]internal.Session, error) {
	path := "/api/v1/chat-sessions/"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list sessionListResponse
	if err := c.do(ctx, http.MethodGet, path, token, nil, &list); err != nil {
		return nil, err
	}
	sessions := make([]internal.Session, 0, len(list.Sessions))
	for _, s := range list.Sessions {
		sessions = append(sessions, s.toSession())
	}
	return sessions, nil
}

// GetSession fetches one session with its messages
func (c *Client) GetSession(ctx context.Context, token, sessionID string) (*internal.Session, error) {
	var rs remoteSession
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat-sessions/"+url.PathEscape(sessionID), token, nil, &rs); err != nil {
		return nil, err
	}
	s := rs.toSession()
	if s.Messages == nil {
		s.Messages = []internal.Message{}
	}
	return &s, nil
}

// RenameSession changes a session title
func (c *Client) RenameSession(ctx context.Context, token, sessionID, title string) error {
	return c.do(ctx, http.MethodPut, "/api/v1/chat-sessions/"+url.PathEscape(sessionID), token, createSessionRequest{Title: title}, nil)
}

// DeleteSession deletes a session and its messages
func (c *Client) DeleteSession(ctx context.Context, token, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/chat-sessions/"+url.PathEscape(sessionID), token, nil, nil)
}

// Ping checks that the backend answers HTTP at all
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &internal.APIError{Op: "GET /", Err: fmt.Errorf("%w: %w", internal.ErrTransport, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return &internal.APIError{Op: "GET /", StatusCode: resp.StatusCode, Err: internal.ErrTransport}
	}
	return nil
}

// do performs one JSON round trip. Session endpoints called without a token
// fail before any I/O.
func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	op := method + " " + path
	if needsBearer(path) && token == "" {
		return &internal.APIError{Op: op, Err: internal.ErrAuthRequired}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	internal.LogDebug("%s", op)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &internal.APIError{Op: op, Err: fmt.Errorf("%w: %w", internal.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &internal.APIError{Op: op, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data)), Err: classifyStatus(resp.StatusCode)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &internal.APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        &internal.ParseError{Source: "remote", Key: path, Err: err},
		}
	}
	return nil
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return internal.ErrAuthRequired
	case http.StatusNotFound:
		return internal.ErrNotFound
	default:
		return internal.ErrTransport
	}
}

func needsBearer(path string) bool {
	return strings.HasPrefix(path, "/api/v1/chat-sessions/")
}
