// Package conversation owns the live transcript and keeps it persisted.
package conversation

import (
	"sync"

	"github.com/iksnae/chatsync/internal"
)

// Binding ties the live conversation to a persisted session. Synced counts
// the leading messages already durable there.
type Binding struct {
	ID     string
	Mode   internal.Mode
	Synced int
}

// Bound reports whether the conversation has a persisted record
func (b Binding) Bound() bool {
	return b.ID != ""
}

// State is the in-memory conversation. Messages and logs only grow until
// Reset or Install replaces them; each replacement starts a new generation.
type State struct {
	mu         sync.Mutex
	messages   []internal.Message
	logs       []internal.LogEntry
	processing bool
	binding    Binding
	aiEdges    int
	generation int
	nextLogID  int64
}

// Snapshot is a consistent copy of the state
type Snapshot struct {
	Messages   []internal.Message
	Binding    Binding
	AIEdges    int
	Generation int
}

// NewState creates an empty conversation
func NewState() *State {
	return &State{messages: []internal.Message{}, logs: []internal.LogEntry{}}
}

// Messages returns a copy of the transcript
func (s *State) Messages() []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return internal.CloneMessages(s.messages)
}

// Logs returns a copy of the diagnostic log
func (s *State) Logs() []internal.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]internal.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *State) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func (s *State) SetProcessing(v bool) {
	s.mu.Lock()
	s.processing = v
	s.mu.Unlock()
}

// Binding returns the current session binding
func (s *State) Binding() Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding
}

// Generation identifies the current conversation
func (s *State) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Snapshot returns messages, binding and counters under one lock
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Messages:   internal.CloneMessages(s.messages),
		Binding:    s.binding,
		AIEdges:    s.aiEdges,
		Generation: s.generation,
	}
}

// AppendUser appends a user message
func (s *State) AppendUser(text string) internal.Message {
	msg := internal.Message{ID: internal.NewMessageID(), Text: text, Sender: internal.SenderUser}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg
}

// AppendAI appends an assistant message when the conversation is still
// generation gen. It returns false for a conversation that moved on.
func (s *State) AppendAI(gen int, text string) (internal.Message, bool) {
	msg := internal.Message{ID: internal.NewMessageID(), Text: text, Sender: internal.SenderAI}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return internal.Message{}, false
	}
	s.messages = append(s.messages, msg)
	s.aiEdges++
	return msg, true
}

// AddLog appends a diagnostic entry
func (s *State) AddLog(typ internal.LogType, text, details string) internal.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	entry := internal.LogEntry{ID: s.nextLogID, Type: typ, Text: text, Details: details}
	s.logs = append(s.logs, entry)
	return entry
}

// BindIf sets the binding when the conversation is still generation gen
func (s *State) BindIf(gen int, b Binding) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.binding = b
	return true
}

// Reset starts a new, unbound conversation
func (s *State) Reset() {
	s.Install(nil, Binding{})
}

// Install replaces the conversation with messages bound to b
func (s *State) Install(messages []internal.Message, b Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = internal.CloneMessages(messages)
	s.logs = []internal.LogEntry{}
	s.processing = false
	s.binding = b
	s.aiEdges = 0
	s.generation++
}
