package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider/sqlite"
)

// setupTestDB opens an in-memory database closed at test cleanup.
func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_Open(t *testing.T) {
	t.Parallel()

	t.Run("creates schema on first open", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		var urlCount int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM urls").Scan(&urlCount)
		require.NoError(t, err)

		var pageCount int
		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&pageCount)
		require.NoError(t, err)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB("/nonexistent/path/db.sqlite")
		err := db.Open()
		require.Error(t, err)
	})

	t.Run("enables WAL mode for file-based databases", func(t *testing.T) {
		t.Parallel()

		dbPath := t.TempDir() + "/test.db"
		db := sqlite.NewDB(dbPath)
		err := db.Open()
		require.NoError(t, err)
		defer db.Close()

		ctx := context.Background()
		var journalMode string
		err = db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		require.Equal(t, "wal", journalMode)
	})

	t.Run("reopening keeps existing rows", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		dbPath := t.TempDir() + "/test.db"

		db := sqlite.NewDB(dbPath)
		require.NoError(t, db.Open())
		_, err := sqlite.NewFrontier(db).AddSeed(ctx, []string{"https://example.com/"})
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db = sqlite.NewDB(dbPath)
		require.NoError(t, db.Open())
		defer db.Close()

		stats, err := sqlite.NewFrontier(db).Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Pending)
	})

	t.Run("ping succeeds on open database", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		require.NoError(t, db.Ping(context.Background()))
	})
}
