package internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryKV is an in-memory KV for tests. FailLoad/FailSave make the
// corresponding calls fail.
type MemoryKV struct {
	mu       sync.Mutex
	data     map[string]string
	Saves    int
	FailLoad error
	FailSave error
}

// NewMemoryKV creates an empty MemoryKV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string]string{}}
}

func (m *MemoryKV) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoad != nil {
		return "", false, m.FailLoad
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.Saves++
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Raw returns the stored value without touching counters
func (m *MemoryKV) Raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// CreateTestSession creates a test session with sample data
func CreateTestSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Title:     "Hello, how are you?",
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []Message{
			{ID: id + "-1", Text: "Hello, how are you?", Sender: SenderUser},
			{ID: id + "-2", Text: "I'm doing well, thank you!", Sender: SenderAI},
		},
	}
}

// CreateTestSessionWithMessages creates a test session with custom messages
func CreateTestSessionWithMessages(id string, messages []Message) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Title:     DeriveTitle(messages),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  messages,
	}
}

// CreateTestTranscript returns n alternating user/ai messages
func CreateTestTranscript(n int) []Message {
	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderAI
		}
		msgs = append(msgs, Message{
			ID:     fmt.Sprintf("m%03d", i),
			Text:   fmt.Sprintf("message %d", i),
			Sender: sender,
		})
	}
	return msgs
}
