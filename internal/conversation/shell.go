package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/api"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSuperseded is returned by a turn that was cancelled, replaced by a
	// newer turn or outlived its conversation. Its reply is dropped.
	ErrSuperseded = errors.New("turn superseded")
)

// ChatClient is the chat backend as the shell uses it
type ChatClient interface {
	Chat(ctx context.Context, message string, history []api.HistoryTurn) (*api.ChatResponse, error)
	GetLog(ctx context.Context, logID string) (*api.ExecutionLog, error)
}

// Options tune a Shell
type Options struct {
	HistoryTurns   int
	RequestTimeout time.Duration
	TurnTimeout    time.Duration
}

// TurnResult describes a completed turn
type TurnResult struct {
	Reply   internal.Message
	Intent  string
	LogID   string
	SyncErr error
}

// Shell runs chat turns against the live conversation
type Shell struct {
	state  *State
	chat   ChatClient
	sync   *Synchronizer
	loader *Loader
	opts   Options

	mu     sync.Mutex
	turn   int
	cancel context.CancelFunc
}

// NewShell wires a shell over state
func NewShell(state *State, chat ChatClient, auth AuthSource, selector StoreSelector, opts Options) *Shell {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 2 * opts.RequestTimeout
	}
	return &Shell{
		state:  state,
		chat:   chat,
		sync:   NewSynchronizer(state, auth, selector),
		loader: NewLoader(state, auth, selector),
		opts:   opts,
	}
}

// State returns the live conversation
func (sh *Shell) State() *State {
	return sh.state
}

// Send runs one turn: append the user message, ask the backend, append the
// reply, persist, then replay the execution log into diagnostics. Starting a
// turn cancels the one in flight.
func (sh *Shell) Send(ctx context.Context, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	turnCtx, turn := sh.begin(ctx)
	defer sh.end(turn)

	gen := sh.state.Generation()
	history := api.HistoryFromMessages(sh.state.Messages(), sh.opts.HistoryTurns)
	sh.state.AppendUser(text)
	sh.state.SetProcessing(true)
	sh.state.AddLog(internal.LogTypeThinking, "INITIATING_SEQUENCE_PLAN: \""+preview(text)+"...\"", "")

	reqCtx, cancel := context.WithTimeout(turnCtx, sh.opts.RequestTimeout)
	resp, err := sh.chat.Chat(reqCtx, text, history)
	cancel()
	if err != nil {
		if sh.stale(turn, gen) {
			return nil, ErrSuperseded
		}
		internal.LogWarn("chat turn failed: %v", err)
		sh.state.AddLog(internal.LogTypeError, "SEQUENCE_ABORTED: SYSTEM_ERROR", err.Error())
		sh.state.SetProcessing(false)
		return nil, err
	}

	reply, ok := sh.appendReply(turn, gen, resp.Response)
	if !ok {
		return nil, ErrSuperseded
	}
	result := &TurnResult{Reply: reply, Intent: resp.Intent, LogID: resp.LogID}
	sh.state.AddLog(internal.LogTypeAction, "DETECTED_INTENT: "+strings.ToUpper(resp.Intent), "")

	syncCtx, cancel := context.WithTimeout(turnCtx, sh.opts.RequestTimeout)
	if err := sh.sync.OnAssistantMessage(syncCtx); err != nil {
		internal.LogWarn("session sync failed: %v", err)
		result.SyncErr = err
	}
	cancel()

	if resp.LogID != "" {
		sh.replayLog(turnCtx, resp.LogID)
	}

	sh.state.AddLog(internal.LogTypeSuccess, "SEQUENCE_COMPLETE: LOG_ID_"+resp.LogID, "")
	sh.state.SetProcessing(false)
	return result, nil
}

// Cancel abandons the turn in flight, if any
func (sh *Shell) Cancel() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.cancel != nil {
		sh.cancel()
		sh.cancel = nil
		sh.turn++
		sh.state.SetProcessing(false)
	}
}

// NewChat cancels any turn and starts an empty, unbound conversation
func (sh *Shell) NewChat() {
	sh.Cancel()
	sh.state.Reset()
}

// Load cancels any turn and installs session id from the active store
func (sh *Shell) Load(ctx context.Context, id string) (*internal.Session, error) {
	sh.Cancel()
	session, err := sh.loader.Load(ctx, id)
	if err != nil {
		internal.LogWarn("%v", err)
		return nil, err
	}
	return session, nil
}

// Sync persists any assistant reply not yet handled
func (sh *Shell) Sync(ctx context.Context) error {
	return sh.sync.OnAssistantMessage(ctx)
}

func (sh *Shell) begin(ctx context.Context) (context.Context, int) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.cancel != nil {
		sh.cancel()
	}
	turnCtx, cancel := context.WithTimeout(ctx, sh.opts.TurnTimeout)
	sh.turn++
	sh.cancel = cancel
	return turnCtx, sh.turn
}

func (sh *Shell) end(turn int) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.turn == turn && sh.cancel != nil {
		sh.cancel()
		sh.cancel = nil
	}
}

func (sh *Shell) stale(turn, gen int) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.turn != turn || sh.state.Generation() != gen
}

// appendReply appends under the shell lock so no newer turn can start
// between the staleness check and the append.
func (sh *Shell) appendReply(turn, gen int, text string) (internal.Message, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.turn != turn {
		return internal.Message{}, false
	}
	return sh.state.AppendAI(gen, text)
}

func (sh *Shell) replayLog(ctx context.Context, logID string) {
	reqCtx, cancel := context.WithTimeout(ctx, sh.opts.RequestTimeout)
	defer cancel()
	log, err := sh.chat.GetLog(reqCtx, logID)
	if err != nil {
		internal.LogDebug("execution log %s unavailable: %v", logID, err)
		return
	}
	for i, step := range log.Details.Steps {
		sh.state.AddLog(internal.LogTypeAction, fmt.Sprintf("EXEC_STEP_%d: %s", i+1, step.Action), step.ResultText())
	}
}

// preview returns the first 20 characters of text
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return string(runes)
}
