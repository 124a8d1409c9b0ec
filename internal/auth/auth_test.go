package auth

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoTrue(t *testing.T) (*GoTrue, *testutil.FakeAPI, *internal.MemoryKV) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	kv := internal.NewMemoryKV()
	return NewGoTrue(fake.URL(), "anon-key", kv, 2*time.Second), fake, kv
}

func TestGoTrue_SignInPersistsSession(t *testing.T) {
	g, fake, kv := newGoTrue(t)
	ctx := context.Background()

	var changes atomic.Int32
	unsubscribe := g.OnChange(func(*internal.AuthSession) { changes.Add(1) })
	defer unsubscribe()

	session, err := g.SignIn(ctx, "user@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "user@example.com", session.User.Email)
	assert.True(t, session.Valid(time.Now()))
	assert.Equal(t, int32(1), changes.Load())

	var stored internal.AuthSession
	testutil.JSONUnmarshal(t, []byte(kv.Raw(internal.KeyAuthSession)), &stored)
	assert.Equal(t, "refresh-1", stored.RefreshToken)

	calls := fake.CallsTo(http.MethodPost, "/auth/v1/token")
	require.Len(t, calls, 1)
}

func TestGoTrue_SignInRejected(t *testing.T) {
	g, _, kv := newGoTrue(t)

	_, err := g.SignIn(context.Background(), "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorContains(t, err, "Invalid login credentials")
	assert.Empty(t, kv.Raw(internal.KeyAuthSession))
}

func TestGoTrue_RestoresPersistedSession(t *testing.T) {
	_, fake, kv := newGoTrue(t)
	ctx := context.Background()
	persisted := internal.AuthSession{
		User:        &internal.User{ID: "user-1"},
		AccessToken: "stored",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	require.NoError(t, kv.Save(ctx, internal.KeyAuthSession, string(testutil.JSONMarshal(t, persisted))))

	g := NewGoTrue(fake.URL(), "anon-key", kv, time.Second)
	session, err := g.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "stored", session.AccessToken)
	assert.Empty(t, fake.Calls(), "valid session needs no network")
}

func TestGoTrue_RefreshesExpiredSession(t *testing.T) {
	_, fake, kv := newGoTrue(t)
	ctx := context.Background()
	expired := internal.AuthSession{AccessToken: "old", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, kv.Save(ctx, internal.KeyAuthSession, string(testutil.JSONMarshal(t, expired))))

	g := NewGoTrue(fake.URL(), "anon-key", kv, time.Second)
	session, err := g.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "access-2", session.AccessToken)
	assert.Contains(t, kv.Raw(internal.KeyAuthSession), "access-2")
}

func TestGoTrue_RejectedRefreshSignsOut(t *testing.T) {
	_, fake, kv := newGoTrue(t)
	ctx := context.Background()
	expired := internal.AuthSession{AccessToken: "old", RefreshToken: "revoked", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, kv.Save(ctx, internal.KeyAuthSession, string(testutil.JSONMarshal(t, expired))))

	g := NewGoTrue(fake.URL(), "anon-key", kv, time.Second)
	session, err := g.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
	_, ok, _ := kv.Load(ctx, internal.KeyAuthSession)
	assert.False(t, ok)
}

func TestGoTrue_ExpiredWithoutRefreshIsGuest(t *testing.T) {
	g, fake, kv := newGoTrue(t)
	ctx := context.Background()
	expired := internal.AuthSession{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, kv.Save(ctx, internal.KeyAuthSession, string(testutil.JSONMarshal(t, expired))))

	session, err := g.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, fake.Calls())
}

func TestGoTrue_SignUp(t *testing.T) {
	g, fake, _ := newGoTrue(t)

	session, err := g.SignUp(context.Background(), "new@example.com", "pw", "newbie")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", session.User.Email)

	calls := fake.CallsTo(http.MethodPost, "/auth/v1/signup")
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]interface{}{"username": "newbie"}, calls[0].Body["data"])
}

func TestGoTrue_SignOut(t *testing.T) {
	g, fake, kv := newGoTrue(t)
	ctx := context.Background()
	_, err := g.SignIn(ctx, "user@example.com", "secret")
	require.NoError(t, err)

	last := &internal.AuthSession{}
	g.OnChange(func(s *internal.AuthSession) { last = s })

	require.NoError(t, g.SignOut(ctx))
	assert.Nil(t, last)
	assert.Empty(t, kv.Raw(internal.KeyAuthSession))

	logout := fake.CallsTo(http.MethodPost, "/auth/v1/logout")
	require.Len(t, logout, 1)
	assert.Equal(t, "Bearer access-1", logout[0].Auth)

	session, err := g.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGuestProvider(t *testing.T) {
	g := NewGuest()
	ctx := context.Background()

	session, err := g.Session(ctx)
	assert.NoError(t, err)
	assert.Nil(t, session)

	_, err = g.SignIn(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.SignUp(ctx, "a", "b", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, g.SignOut(ctx))
}

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()

	empty, _ := NewStatic("").Session(ctx)
	assert.Nil(t, empty)

	p := NewStatic("tok")
	session, err := p.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", session.AccessToken)

	_, err = p.SignIn(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNotSupported)

	require.NoError(t, p.SignOut(ctx))
	session, _ = p.Session(ctx)
	assert.Nil(t, session)
}

func TestState_MirrorsProvider(t *testing.T) {
	g, _, _ := newGoTrue(t)
	ctx := context.Background()
	state := NewState(g)
	defer state.Close()

	require.NoError(t, state.Refresh(ctx))
	assert.False(t, state.IsAuthenticated())
	assert.Equal(t, internal.ModeGuest, state.Mode())
	assert.Empty(t, state.Token())

	_, err := g.SignIn(ctx, "user@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
	assert.Equal(t, internal.ModeAuthenticated, state.Mode())
	assert.Equal(t, "access-1", state.Token())

	require.NoError(t, g.SignOut(ctx))
	assert.Nil(t, state.Current())
}

func TestState_SessionRefreshesOnUse(t *testing.T) {
	g, fake, _ := newGoTrue(t)
	ctx := context.Background()
	fake.TokenLifetime = 10 * time.Second
	state := NewState(g)
	defer state.Close()

	_, err := g.SignIn(ctx, "user@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "access-1", state.Token())

	session, err := state.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "access-2", session.AccessToken)
	assert.Equal(t, "access-2", state.Token(), "mirror follows the refresh")
}

func TestState_SessionErrorKeepsMirror(t *testing.T) {
	g, fake, kv := newGoTrue(t)
	ctx := context.Background()
	expiring := internal.AuthSession{AccessToken: "old", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(time.Second)}
	require.NoError(t, kv.Save(ctx, internal.KeyAuthSession, string(testutil.JSONMarshal(t, expiring))))
	state := NewState(g)
	defer state.Close()
	state.set(&expiring)

	fake.Server.Close()
	_, err := state.Session(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrTransport)
	assert.Equal(t, "old", state.Current().AccessToken)
}

func TestState_ExpiredTokenIsGuest(t *testing.T) {
	p := NewStatic("tok")
	state := NewState(p)
	defer state.Close()
	require.NoError(t, state.Refresh(context.Background()))

	state.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.True(t, state.IsAuthenticated(), "static tokens carry no expiry")

	state.set(&internal.AuthSession{AccessToken: "x", ExpiresAt: time.Now()})
	assert.False(t, state.IsAuthenticated())
	assert.Empty(t, state.Token())
}

func TestNotifier_Unsubscribe(t *testing.T) {
	var n notifier
	var calls int
	unsubscribe := n.OnChange(func(*internal.AuthSession) { calls++ })

	n.notify(nil)
	unsubscribe()
	unsubscribe()
	n.notify(nil)

	assert.Equal(t, 1, calls)
}
