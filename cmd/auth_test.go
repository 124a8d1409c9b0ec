package cmd

import (
	"os"
	"testing"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_MigrateLogout(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("", "send", "one")
	e.mustRun("", "send", "two")
	require.Len(t, e.localSessions(), 2)

	e.enableAuthPlatform()
	out := e.mustRun("user@example.com\nsecret\n", "login")
	assert.Contains(t, out, "Signed in as user@example.com")
	assert.Contains(t, out, "2 guest conversation(s)")

	out = e.mustRun("", "whoami")
	assert.Contains(t, out, "user@example.com")
	assert.Contains(t, out, "User ID: user-1")

	out = e.mustRun("", "migrate")
	assert.Contains(t, out, "Uploaded 2")
	assert.Equal(t, 2, e.backend.SessionCount())
	assert.Empty(t, e.localSessions())

	out = e.mustRun("", "migrate")
	assert.Contains(t, out, "No guest conversations to migrate")

	e.mustRun("", "send", "three")
	assert.Equal(t, 3, e.backend.SessionCount())
	assert.Empty(t, e.localSessions())

	e.mustRun("", "list")
	_, err := os.Stat(internal.NewCacheManager(e.cacheDir).GetIndexPath())
	require.NoError(t, err, "listing cached")

	out = e.mustRun("", "logout")
	assert.Contains(t, out, "Signed out")
	assert.Len(t, e.backend.CallsTo("POST", "/auth/v1/logout"), 1)
	_, err = os.Stat(internal.NewCacheManager(e.cacheDir).GetIndexPath())
	assert.True(t, os.IsNotExist(err), "cache cleared on sign-out")

	out = e.mustRun("", "whoami")
	assert.Contains(t, out, "Guest")
}

func TestLogin_EmailFlag(t *testing.T) {
	e := newTestEnv(t)
	e.enableAuthPlatform()

	out := e.mustRun("secret\n", "login", "--email", "flag@example.com")
	assert.Contains(t, out, "Signed in as flag@example.com")
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.enableAuthPlatform()

	_, err := e.run("user@example.com\nnope\n", "login")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	out := e.mustRun("", "whoami")
	assert.Contains(t, out, "Guest")
}

func TestLogin_NoAuthPlatform(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run("user@example.com\nsecret\n", "login")
	assert.ErrorIs(t, err, auth.ErrNotConfigured)
}

func TestSignup(t *testing.T) {
	e := newTestEnv(t)
	e.enableAuthPlatform()

	out := e.mustRun("new@example.com\nnewbie\nsecret\n", "signup")
	assert.Contains(t, out, "Account created, signed in as new@example.com")

	calls := e.backend.CallsTo("POST", "/auth/v1/signup")
	require.Len(t, calls, 1)
	data, _ := calls[0].Body["data"].(map[string]interface{})
	assert.Equal(t, "newbie", data["username"])
}

func TestSignup_ShortPassword(t *testing.T) {
	e := newTestEnv(t)
	e.enableAuthPlatform()

	_, err := e.run("new@example.com\nnewbie\n123\n", "signup")
	assert.Error(t, err)
	assert.Empty(t, e.backend.CallsTo("POST", "/auth/v1/signup"))
}

func TestTokenMode(t *testing.T) {
	e := newTestEnv(t)
	e.signInWithToken("tok")

	e.mustRun("", "send", "Hello")
	assert.Equal(t, 1, e.backend.SessionCount())
	assert.Empty(t, e.localSessions())

	out := e.mustRun("", "list")
	assert.Contains(t, out, "Hello")

	out = e.mustRun("", "whoami")
	assert.Contains(t, out, "token user")
}

func TestTokenMode_Rejected(t *testing.T) {
	e := newTestEnv(t)
	e.backend.Token = "expected"
	e.signInWithToken("stale")

	_, err := e.run("", "list")
	assert.True(t, internal.IsAuthRequired(err), "got %v", err)

	out, err := e.run("", "send", "Hello")
	assert.Contains(t, out, "echo: Hello", "the reply is still shown")
	assert.True(t, internal.IsAuthRequired(err), "got %v", err)
}

func TestMigrate_RequiresSignIn(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("", "send", "Hello")

	_, err := e.run("", "migrate")
	assert.ErrorIs(t, err, internal.ErrAuthRequired)
	assert.Len(t, e.localSessions(), 1)
}

func TestMigrate_PartialFailure(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun("", "send", "Hello")
	e.signInWithToken("tok")
	e.backend.FailCreate = true

	out, err := e.run("", "migrate")
	assert.Error(t, err)
	assert.Contains(t, out, "1 conversation(s) failed")
	assert.Len(t, e.localSessions(), 1)

	e.backend.FailCreate = false
	out = e.mustRun("", "migrate")
	assert.Contains(t, out, "Uploaded 1")
	assert.Equal(t, 1, e.backend.SessionCount())
}

func TestOfflineCache(t *testing.T) {
	e := newTestEnv(t)
	e.signInWithToken("tok")
	e.mustRun("", "send", "Hello")
	id := e.backend.Session("srv-1").ID

	e.mustRun("", "list")
	e.mustRun("", "show", id)
	e.backend.Server.Close()

	out := e.mustRun("", "list")
	assert.Contains(t, out, "Offline")
	assert.Contains(t, out, "Hello")

	out = e.mustRun("", "show", id)
	assert.Contains(t, out, "echo: Hello")

	_, err := e.run("", "delete", "--yes", id)
	assert.ErrorIs(t, err, internal.ErrTransport)
}
