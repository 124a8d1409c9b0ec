package internal

import "time"

// Sender identifies the author of a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message represents one entry of a conversation transcript.
// Messages are immutable once appended.
type Message struct {
	ID     string `json:"id" yaml:"id"`
	Text   string `json:"text" yaml:"text"`
	Sender Sender `json:"sender" yaml:"sender"`
}

// Session represents a persisted conversation
type Session struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	MessageCount int       `json:"message_count,omitempty" yaml:"message_count,omitempty"`
	Messages     []Message `json:"messages" yaml:"messages"`
}

// LastActivity returns updated_at, falling back to created_at
func (s *Session) LastActivity() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Count returns the number of messages, preferring the loaded transcript
// over the server-side counter.
func (s *Session) Count() int {
	if len(s.Messages) > 0 {
		return len(s.Messages)
	}
	return s.MessageCount
}

// CloneMessages returns a copy of msgs that shares no backing array with it.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// timestampLayouts are tried in order; the backend writes naive UTC
// isoformat() values next to proper RFC 3339 ones.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp. Unparseable input yields the zero time.
func ParseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
