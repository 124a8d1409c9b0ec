package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/store"
	"github.com/iksnae/chatsync/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// testEnv points the CLI at a fake backend and a throwaway home directory
type testEnv struct {
	t         *testing.T
	home      string
	storePath string
	cacheDir  string
	backend   *testutil.FakeAPI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	e := &testEnv{
		t:         t,
		home:      home,
		storePath: filepath.Join(home, "chatsync.db"),
		cacheDir:  filepath.Join(home, "cache"),
		backend:   testutil.NewFakeAPI(t),
	}

	t.Setenv("HOME", home)
	t.Chdir(home)
	for _, key := range []string{
		"SUPABASE_URL", "SUPABASE_ANON_KEY",
		"CHATSYNC_SUPABASE_URL", "CHATSYNC_SUPABASE_ANON_KEY",
		"CHATSYNC_ACCESS_TOKEN", "CHATSYNC_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Setenv("CHATSYNC_API_URL", e.backend.URL())
	t.Setenv("CHATSYNC_STORE_PATH", e.storePath)
	t.Setenv("CHATSYNC_CACHE_DIR", e.cacheDir)
	return e
}

// signInWithToken makes later runs use a pre-issued token
func (e *testEnv) signInWithToken(token string) {
	e.t.Setenv("CHATSYNC_ACCESS_TOKEN", token)
}

// enableAuthPlatform points the auth provider at the fake backend
func (e *testEnv) enableAuthPlatform() {
	e.t.Setenv("CHATSYNC_SUPABASE_URL", e.backend.URL())
	e.t.Setenv("CHATSYNC_SUPABASE_ANON_KEY", "anon")
}

// run executes the CLI with args and stdin and returns combined output
func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	resetFlags(rootCmd)
	v = newViper()

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()
	out, err := e.run(stdin, args...)
	require.NoError(e.t, err, "chatsync %s\n%s", strings.Join(args, " "), out)
	return out
}

// localSessions reads the guest store directly
func (e *testEnv) localSessions() []internal.Session {
	e.t.Helper()
	storage, err := internal.OpenStorage(e.storePath)
	require.NoError(e.t, err)
	defer func() { _ = storage.Close() }()
	sessions, err := store.NewLocalStore(storage).List(context.Background())
	require.NoError(e.t, err)
	return sessions
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}
