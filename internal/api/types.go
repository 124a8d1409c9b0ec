package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/iksnae/chatsync/internal"
)

// Part is one text fragment of a history turn
type Part struct {
	Text string `json:"text"`
}

// HistoryTurn is a prior message as the chat endpoint expects it
type HistoryTurn struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// ChatRequest represents a chat request to the backend
type ChatRequest struct {
	Message   string        `json:"message"`
	SessionID string        `json:"session_id,omitempty"`
	History   []HistoryTurn `json:"history"`
}

// ChatResponse represents the backend's reply to a chat turn
type ChatResponse struct {
	Response string   `json:"response"`
	LogID    string   `json:"log_id,omitempty"`
	Intent   string   `json:"intent"`
	Actions  []string `json:"actions,omitempty"`
}

// LogStep is one step of an execution log
type LogStep struct {
	Action string          `json:"action"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ResultText renders the step result for display: strings unquoted,
// everything else as compact JSON.
func (s LogStep) ResultText() string {
	if len(s.Result) == 0 || string(s.Result) == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(s.Result, &str); err == nil {
		return str
	}
	return string(s.Result)
}

// ExecutionLog is the diagnostic record of one chat turn
type ExecutionLog struct {
	ID      FlexibleID `json:"id"`
	Details struct {
		Steps []LogStep `json:"steps"`
	} `json:"details"`
}

// FlexibleID accepts both string and numeric JSON ids
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = FlexibleID(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("invalid id %s", s)
	}
	*f = FlexibleID(s)
	return nil
}

type createSessionRequest struct {
	Title string `json:"title"`
}

type appendMessageRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

type remoteMessage struct {
	ID     FlexibleID `json:"id"`
	Text   string     `json:"text"`
	Sender string     `json:"sender"`
}

// remoteSession mirrors the backend's session rows. Timestamps stay strings
// because the backend writes naive isoformat values.
type remoteSession struct {
	ID           FlexibleID      `json:"id"`
	Title        string          `json:"title"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	MessageCount int             `json:"message_count"`
	Messages     []remoteMessage `json:"messages"`
}

type sessionListResponse struct {
	Sessions []remoteSession `json:"sessions"`
	Total    int             `json:"total"`
}

func (r remoteSession) toSession() internal.Session {
	s := internal.Session{
		ID:           string(r.ID),
		Title:        r.Title,
		CreatedAt:    internal.ParseTimestamp(r.CreatedAt),
		UpdatedAt:    internal.ParseTimestamp(r.UpdatedAt),
		MessageCount: r.MessageCount,
	}
	if r.Messages != nil {
		s.Messages = make([]internal.Message, 0, len(r.Messages))
		for _, m := range r.Messages {
			s.Messages = append(s.Messages, internal.Message{
				ID:     string(m.ID),
				Text:   m.Text,
				Sender: toSender(m.Sender),
			})
		}
	}
	return s
}

func toSender(s string) internal.Sender {
	if s == string(internal.SenderUser) {
		return internal.SenderUser
	}
	return internal.SenderAI
}

// HistoryFromMessages converts the last n messages into chat history turns.
// n <= 0 sends no history.
func HistoryFromMessages(messages []internal.Message, n int) []HistoryTurn {
	if n <= 0 {
		return []HistoryTurn{}
	}
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	turns := make([]HistoryTurn, 0, len(messages))
	for _, m := range messages {
		role := "model"
		if m.Sender == internal.SenderUser {
			role = "user"
		}
		turns = append(turns, HistoryTurn{Role: role, Parts: []Part{{Text: m.Text}}})
	}
	return turns
}
