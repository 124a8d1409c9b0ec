package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// SampleSessionsJSON is a guest session list as the local store writes it
const SampleSessionsJSON = `[
  {"id":"local_2000","title":"Plan the launch","created_at":"2024-05-02T10:00:00Z","updated_at":"2024-05-02T10:05:00Z",
   "messages":[{"id":"a1","text":"Plan the launch","sender":"user"},{"id":"a2","text":"Here is a plan.","sender":"ai"}]},
  {"id":"local_1000","title":"Hello","created_at":"2024-05-01T09:00:00Z","updated_at":"2024-05-01T09:01:00Z",
   "messages":[{"id":"b1","text":"Hello","sender":"user"},{"id":"b2","text":"Hi there","sender":"ai"}]}
]`

// CreateInMemoryDB creates an in-memory SQLite database with the kv table
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create kv table: %v", err)
	}

	return db
}

// CreateTestDB creates a test database holding two guest sessions and the
// welcome flag
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)
	InsertKV(t, db, "chat_sessions", SampleSessionsJSON)
	InsertKV(t, db, "hasSeenWelcome", "true")
	return db
}

// InsertKV inserts a row into the kv table. A nil value is stored as NULL.
func InsertKV(t *testing.T, db *sql.DB, key string, value interface{}) {
	t.Helper()
	insertSQL := "INSERT INTO kv (key, value) VALUES (?, ?)"
	if _, err := db.Exec(insertSQL, key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}
