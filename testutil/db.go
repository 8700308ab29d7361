package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/onnwee/chat-timer/db"
)

// SetupTestDB opens the Postgres database named by TEST_PG_DSN and runs migrations.
// It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *db.Store {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	return openAndMigrate(t, dsn)
}

// SetupSQLite returns a migrated in-memory SQLite store private to the test.
func SetupSQLite(t *testing.T) *db.Store {
	t.Helper()
	return openAndMigrate(t, "sqlite::memory:")
}

func openAndMigrate(t *testing.T, dsn string) *db.Store {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
