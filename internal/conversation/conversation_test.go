package conversation

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/api"
	"github.com/iksnae/chatsync/internal/auth"
	"github.com/iksnae/chatsync/internal/store"
	"github.com/iksnae/chatsync/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// switchableAuth lets a test sign in or out between turns
type switchableAuth struct {
	mu      sync.Mutex
	session *internal.AuthSession
}

func (a *switchableAuth) Session(context.Context) (*internal.AuthSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, nil
}

func (a *switchableAuth) set(s *internal.AuthSession) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

// blockingChat answers once released, or fails when its context ends
type blockingChat struct {
	entered chan string
	release chan struct{}
}

func newBlockingChat() *blockingChat {
	return &blockingChat{entered: make(chan string, 4), release: make(chan struct{})}
}

func (b *blockingChat) Chat(ctx context.Context, message string, _ []api.HistoryTurn) (*api.ChatResponse, error) {
	b.entered <- message
	select {
	case <-b.release:
		return &api.ChatResponse{Response: "re: " + message, Intent: "chat"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingChat) GetLog(context.Context, string) (*api.ExecutionLog, error) {
	return nil, internal.ErrNotFound
}

type harness struct {
	backend *testutil.FakeAPI
	client  *api.Client
	kv      *internal.MemoryKV
	local   *store.LocalStore
	auth    *switchableAuth
	shell   *Shell
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: testutil.NewFakeAPI(t),
		kv:      internal.NewMemoryKV(),
		auth:    &switchableAuth{},
	}
	h.backend.Token = "tok"
	h.client = api.NewClient(h.backend.URL(), 2*time.Second)
	h.local = store.NewLocalStore(h.kv)
	h.shell = NewShell(NewState(), h.client, h.auth, h.selector(), Options{HistoryTurns: 10, RequestTimeout: 2 * time.Second})
	return h
}

func (h *harness) selector() *store.Selector {
	return store.NewSelector(h.local, h.client, 50)
}

func (h *harness) signIn() {
	h.auth.set(&internal.AuthSession{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})
}

func logTexts(entries []internal.LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func TestShell_GuestHello(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.shell.Send(ctx, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: Hello", res.Reply.Text)
	assert.NoError(t, res.SyncErr)

	sessions, err := h.local.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Hello", sessions[0].Title)
	require.Len(t, sessions[0].Messages, 2)
	assert.Equal(t, internal.SenderUser, sessions[0].Messages[0].Sender)
	assert.Equal(t, internal.SenderAI, sessions[0].Messages[1].Sender)

	b := h.shell.State().Binding()
	assert.Equal(t, sessions[0].ID, b.ID)
	assert.Equal(t, internal.ModeGuest, b.Mode)
	assert.False(t, h.shell.State().Processing())

	assert.Equal(t, []string{
		`INITIATING_SEQUENCE_PLAN: "Hello..."`,
		"DETECTED_INTENT: CHAT",
		"EXEC_STEP_1: classify",
		"EXEC_STEP_2: respond",
		"SEQUENCE_COMPLETE: LOG_ID_log-1",
	}, logTexts(h.shell.State().Logs()))
	assert.Equal(t, "ok", h.shell.State().Logs()[2].Details)
	assert.Empty(t, h.backend.CallsTo(http.MethodPost, "/api/v1/chat-sessions/"), "guests never touch the remote store")
}

func TestShell_GuestSecondTurnReplacesInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.shell.Send(ctx, "first")
	require.NoError(t, err)
	_, err = h.shell.Send(ctx, "second")
	require.NoError(t, err)

	sessions, _ := h.local.List(ctx)
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Messages, 4)
	assert.Equal(t, "first", sessions[0].Title)
}

func TestShell_AuthenticatedTurnsSyncIncrementally(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		res, err := h.shell.Send(ctx, text)
		require.NoError(t, err)
		require.NoError(t, res.SyncErr)
	}

	creates := h.backend.CallsTo(http.MethodPost, "/api/v1/chat-sessions/")
	id := h.shell.State().Binding().ID
	require.NotEmpty(t, id)

	var createCount, appendCount int
	for _, c := range creates {
		if c.Path == "/api/v1/chat-sessions/" {
			createCount++
		} else {
			appendCount++
		}
	}
	assert.Equal(t, 1, createCount)
	assert.Equal(t, 6, appendCount)

	stored := h.backend.Session(id)
	require.NotNil(t, stored)
	assert.Equal(t, "one", stored.Title)
	msgs := h.shell.State().Messages()
	require.Len(t, stored.Messages, len(msgs))
	for i := range msgs {
		assert.Equal(t, msgs[i].Text, stored.Messages[i].Text)
	}
	assert.Equal(t, 6, h.shell.State().Binding().Synced)
}

func TestShell_ChatFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.FailChat = true

	_, err := h.shell.Send(context.Background(), "Hello")
	require.Error(t, err)

	state := h.shell.State()
	assert.False(t, state.Processing())
	require.Len(t, state.Messages(), 1, "user message kept")
	logs := logTexts(state.Logs())
	assert.Equal(t, "SEQUENCE_ABORTED: SYSTEM_ERROR", logs[len(logs)-1])
	assert.Zero(t, h.kv.Saves, "no sync without an assistant message")
}

func TestShell_SyncFailureIsReportedNotFatal(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.FailCreate = true

	res, err := h.shell.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, internal.ErrTransport)
	assert.False(t, h.shell.State().Binding().Bound())
	assert.Len(t, h.shell.State().Messages(), 2)
}

func TestShell_EmptyMessage(t *testing.T) {
	h := newHarness(t)
	_, err := h.shell.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.backend.Calls())
}

func TestShell_HistoryWindow(t *testing.T) {
	h := newHarness(t)
	h.shell.opts.HistoryTurns = 3
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := h.shell.Send(ctx, text)
		require.NoError(t, err)
	}

	chats := h.backend.CallsTo(http.MethodPost, "/api/v1/chat/")
	require.Len(t, chats, 3)
	assert.Len(t, chats[0].Body["history"], 0)
	assert.Len(t, chats[1].Body["history"], 2)
	assert.Len(t, chats[2].Body["history"], 3)
}

func TestSynchronizer_EdgeTriggered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.shell.Send(ctx, "Hello")
	require.NoError(t, err)
	saves := h.kv.Saves

	require.NoError(t, h.shell.Sync(ctx))
	require.NoError(t, h.shell.Sync(ctx))
	assert.Equal(t, saves, h.kv.Saves, "no new assistant message, no write")

	state := h.shell.State()
	state.AppendUser("unanswered")
	require.NoError(t, h.shell.Sync(ctx))
	assert.Equal(t, saves, h.kv.Saves, "user messages alone do not trigger")
}

func TestSynchronizer_ModeMismatchStartsFreshRemoteRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.shell.Send(ctx, "as guest")
	require.NoError(t, err)
	guestID := h.shell.State().Binding().ID

	h.signIn()
	_, err = h.shell.Send(ctx, "now signed in")
	require.NoError(t, err)

	b := h.shell.State().Binding()
	assert.NotEqual(t, guestID, b.ID)
	assert.Equal(t, internal.ModeAuthenticated, b.Mode)
	stored := h.backend.Session(b.ID)
	require.NotNil(t, stored)
	assert.Len(t, stored.Messages, 4, "full backfill")
	assert.Equal(t, "as guest", stored.Title)
}

func TestShell_ExpiringTokenRefreshedBeforeSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Only refreshed tokens are accepted, and every issued token is already
	// inside the refresh window.
	h.backend.Token = "access-2"
	h.backend.TokenLifetime = 10 * time.Second

	provider := auth.NewGoTrue(h.backend.URL(), "anon-key", h.kv, 2*time.Second)
	authState := auth.NewState(provider)
	defer authState.Close()
	_, err := provider.SignIn(ctx, "user@example.com", "secret")
	require.NoError(t, err)

	shell := NewShell(NewState(), h.client, authState, h.selector(), Options{HistoryTurns: 10, RequestTimeout: 2 * time.Second})
	for _, text := range []string{"one", "two"} {
		res, err := shell.Send(ctx, text)
		require.NoError(t, err)
		require.NoError(t, res.SyncErr)
	}

	b := shell.State().Binding()
	assert.Equal(t, internal.ModeAuthenticated, b.Mode)
	assert.Equal(t, 4, b.Synced)
	stored := h.backend.Session(b.ID)
	require.NotNil(t, stored)
	assert.Len(t, stored.Messages, 4)
	assert.Equal(t, 1, h.backend.SessionCount())

	local, err := h.local.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, local)

	refreshes := 0
	for _, c := range h.backend.CallsTo(http.MethodPost, "/auth/v1/token") {
		if c.Body["refresh_token"] != nil {
			refreshes++
		}
	}
	assert.GreaterOrEqual(t, refreshes, 2, "one refresh per sync")
	assert.Equal(t, "access-2", authState.Token())
}

func TestShell_ExpiredSessionKeepsRemoteBinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn()

	_, err := h.shell.Send(ctx, "one")
	require.NoError(t, err)
	bound := h.shell.State().Binding()
	require.Equal(t, internal.ModeAuthenticated, bound.Mode)

	h.auth.set(&internal.AuthSession{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)})
	res, err := h.shell.Send(ctx, "two")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, internal.ErrAuthRequired)
	assert.Equal(t, bound, h.shell.State().Binding())

	local, err := h.local.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, local, "signed-in transcript written to the guest store")

	h.signIn()
	res, err = h.shell.Send(ctx, "three")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)

	b := h.shell.State().Binding()
	assert.Equal(t, bound.ID, b.ID)
	assert.Equal(t, 6, b.Synced)
	assert.Len(t, h.backend.Session(bound.ID).Messages, 6)
	assert.Equal(t, 1, h.backend.SessionCount())
}

func TestSynchronizer_ConcurrentCallsSerialized(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	state := NewState()
	syncer := NewSynchronizer(state, h.auth, h.selector())
	state.AppendUser("hi")
	state.AppendAI(state.Generation(), "hello")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = syncer.OnAssistantMessage(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.backend.SessionCount(), "exactly one create")
	assert.Len(t, h.backend.Session(state.Binding().ID).Messages, 2)
}

func TestLoader_Guest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.local.Save(ctx, store.SaveRequest{Messages: internal.CreateTestTranscript(4)})
	require.NoError(t, err)

	_, err = h.shell.Send(ctx, "current")
	require.NoError(t, err)
	before := h.shell.State().Messages()

	_, err = h.shell.Load(ctx, "local_missing")
	assert.ErrorIs(t, err, internal.ErrNotFound)
	assert.Equal(t, before, h.shell.State().Messages(), "state untouched")

	loaded, err := h.shell.Load(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 4)
	assert.Equal(t, internal.CreateTestTranscript(4), h.shell.State().Messages())
	assert.Equal(t, Binding{ID: res.ID, Mode: internal.ModeGuest, Synced: 4}, h.shell.State().Binding())
	assert.Empty(t, h.shell.State().Logs())
}

func TestLoader_RemoteThenContinue(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	ctx := context.Background()
	id := h.backend.AddSession("Earlier", time.Now(),
		testutil.FakeMessage{ID: "1", Text: "q", Sender: "user"},
		testutil.FakeMessage{ID: "2", Text: "a", Sender: "ai"},
	)

	_, err := h.shell.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Binding{ID: id, Mode: internal.ModeAuthenticated, Synced: 2}, h.shell.State().Binding())

	_, err = h.shell.Send(ctx, "follow up")
	require.NoError(t, err)

	assert.Equal(t, 1, h.backend.SessionCount(), "no new record")
	assert.Len(t, h.backend.Session(id).Messages, 4, "only the new turn appended")
}

func TestLoader_RemoteFailureLeavesState(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	ctx := context.Background()
	_, err := h.shell.Send(ctx, "keep me")
	require.NoError(t, err)
	binding := h.shell.State().Binding()

	_, err = h.shell.Load(ctx, "srv-404")
	assert.ErrorIs(t, err, internal.ErrNotFound)
	assert.Equal(t, binding, h.shell.State().Binding())
	assert.Len(t, h.shell.State().Messages(), 2)
}

func TestShell_CancelDropsReply(t *testing.T) {
	h := newHarness(t)
	chat := newBlockingChat()
	h.shell.chat = chat
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.shell.Send(ctx, "slow")
		done <- err
	}()
	<-chat.entered
	h.shell.Cancel()

	assert.ErrorIs(t, <-done, ErrSuperseded)
	msgs := h.shell.State().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "slow", msgs[0].Text)
	assert.False(t, h.shell.State().Processing())
	assert.Zero(t, h.kv.Saves)

	close(chat.release)
	res, err := h.shell.Send(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, "re: again", res.Reply.Text)

	msgs = h.shell.State().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []internal.Sender{internal.SenderUser, internal.SenderUser, internal.SenderAI},
		[]internal.Sender{msgs[0].Sender, msgs[1].Sender, msgs[2].Sender})
}

func TestShell_NewTurnSupersedesOld(t *testing.T) {
	h := newHarness(t)
	chat := newBlockingChat()
	h.shell.chat = chat
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := h.shell.Send(ctx, "old")
		first <- err
	}()
	<-chat.entered

	second := make(chan error, 1)
	go func() {
		_, err := h.shell.Send(ctx, "new")
		second <- err
	}()

	assert.ErrorIs(t, <-first, ErrSuperseded)
	<-chat.entered
	close(chat.release)
	require.NoError(t, <-second)

	var replies []string
	for _, m := range h.shell.State().Messages() {
		if m.Sender == internal.SenderAI {
			replies = append(replies, m.Text)
		}
	}
	assert.Equal(t, []string{"re: new"}, replies)
}

func TestShell_NewChatDuringTurn(t *testing.T) {
	h := newHarness(t)
	chat := newBlockingChat()
	h.shell.chat = chat

	done := make(chan error, 1)
	go func() {
		_, err := h.shell.Send(context.Background(), "abandoned")
		done <- err
	}()
	<-chat.entered
	h.shell.NewChat()

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Empty(t, h.shell.State().Messages())
	assert.False(t, h.shell.State().Binding().Bound())
	close(chat.release)
}

func TestShell_TurnTimeout(t *testing.T) {
	h := newHarness(t)
	h.backend.ChatDelay = time.Second
	h.shell.opts.RequestTimeout = 50 * time.Millisecond

	_, err := h.shell.Send(context.Background(), "Hello")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, h.shell.State().Processing())
	logs := logTexts(h.shell.State().Logs())
	assert.Equal(t, "SEQUENCE_ABORTED: SYSTEM_ERROR", logs[len(logs)-1])
}

func TestState_ResetAndInstall(t *testing.T) {
	s := NewState()
	gen := s.Generation()
	s.AppendUser("hi")
	_, ok := s.AppendAI(gen, "hello")
	require.True(t, ok)
	s.AddLog(internal.LogTypeThinking, "x", "")
	require.True(t, s.BindIf(gen, Binding{ID: "a", Mode: internal.ModeGuest, Synced: 2}))

	s.Reset()
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.Logs())
	assert.Equal(t, Binding{}, s.Binding())
	assert.NotEqual(t, gen, s.Generation())

	_, ok = s.AppendAI(gen, "late")
	assert.False(t, ok, "stale generation rejected")
	assert.False(t, s.BindIf(gen, Binding{ID: "late"}))
	assert.Zero(t, s.Snapshot().AIEdges)
}

func TestState_LogIDsIncrease(t *testing.T) {
	s := NewState()
	a := s.AddLog(internal.LogTypeAction, "a", "")
	b := s.AddLog(internal.LogTypeAction, "b", "")
	assert.Less(t, a.ID, b.ID)
}
