package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iksnae/chatsync/testutil"
)

func TestOpenDatabase(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "existing database",
			setup: func(t *testing.T) string {
				dbPath := filepath.Join(testutil.CreateTempDir(t), "test.db")
				testutil.CreateSQLiteFixture(t, dbPath)
				return dbPath
			},
		},
		{
			name: "missing database is created",
			setup: func(t *testing.T) string {
				return filepath.Join(testutil.CreateTempDir(t), "nested", "dir", "new.db")
			},
		},
		{
			name: "in memory",
			setup: func(t *testing.T) string {
				return ":memory:"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := tt.setup(t)
			db, err := OpenDatabase(dbPath)
			if err != nil {
				t.Fatalf("OpenDatabase() error = %v", err)
			}
			defer db.Close()

			if err := db.Ping(); err != nil {
				t.Errorf("Database ping failed: %v", err)
			}
			if _, err := db.Exec("SELECT key, value FROM kv LIMIT 1"); err != nil {
				t.Errorf("kv table missing: %v", err)
			}
		})
	}
}

func TestOpenDatabase_KeepsExistingRows(t *testing.T) {
	dbPath := filepath.Join(testutil.CreateTempDir(t), "test.db")
	testutil.CreateSQLiteFixture(t, dbPath)

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	pairs, err := QueryKV(context.Background(), db, KeyChatSessions)
	if err != nil {
		t.Fatalf("QueryKV() error = %v", err)
	}
	if len(pairs) != 1 || pairs[0].Value != testutil.SampleSessionsJSON {
		t.Errorf("QueryKV() = %v, want the seeded session list", pairs)
	}
}

func TestQueryKV(t *testing.T) {
	db := testutil.CreateTestDB(t)
	defer db.Close()
	testutil.InsertKV(t, db, "chat_draft", nil)

	tests := []struct {
		name      string
		pattern   string
		wantCount int
	}{
		{"all keys", "%", 2},
		{"prefix", "chat_%", 1},
		{"exact", KeyHasSeenWelcome, 1},
		{"no match", "nothing%", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := QueryKV(context.Background(), db, tt.pattern)
			if err != nil {
				t.Fatalf("QueryKV() error = %v", err)
			}
			if len(pairs) != tt.wantCount {
				t.Errorf("QueryKV(%q) returned %d pairs, want %d", tt.pattern, len(pairs), tt.wantCount)
			}
		})
	}
}

func TestQueryKV_ClosedDatabase(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	db.Close()

	if _, err := QueryKV(context.Background(), db, "%"); err == nil {
		t.Error("QueryKV() on closed database should fail")
	}
}
