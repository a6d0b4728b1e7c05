package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/sqlite"
)

// BenchmarkWALMode compares write performance between WAL and rollback journal modes.
// This simulates a crawl workload: claiming URLs and saving one record per page.
func BenchmarkWALMode(b *testing.B) {
	b.Run("rollback_journal", func(b *testing.B) {
		benchmarkRecordSaves(b, false)
	})

	b.Run("wal_mode", func(b *testing.B) {
		benchmarkRecordSaves(b, true)
	})
}

func openBenchDB(b *testing.B, useWAL bool) *sqlite.DB {
	b.Helper()

	dbPath := filepath.Join(b.TempDir(), "bench.db")
	db := sqlite.NewDB(dbPath)
	require.NoError(b, db.Open())
	b.Cleanup(func() { db.Close() })

	// Open enables WAL for files; switch back for the baseline.
	if !useWAL {
		_, err := db.ExecContext(context.Background(), "PRAGMA journal_mode = DELETE")
		require.NoError(b, err)
	}
	return db
}

func benchmarkRecordSaves(b *testing.B, useWAL bool) {
	b.Helper()

	db := openBenchDB(b, useWAL)
	ctx := context.Background()
	store := sqlite.NewRecordStore(db)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		rec := &spider.Record{
			URL:   fmt.Sprintf("https://example.com/page%d", i),
			Title: fmt.Sprintf("Page %d", i),
			Body:  fmt.Sprintf("Page %d body with some additional text to make it more realistic. Lorem ipsum dolor sit amet, consectetur adipiscing elit.", i),
			Links: []string{fmt.Sprintf("https://example.com/page%d", i+1)},
		}
		if err := store.Save(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFrontierCycle measures one admit, claim and mark round trip.
func BenchmarkFrontierCycle(b *testing.B) {
	b.Run("rollback_journal", func(b *testing.B) {
		benchmarkFrontierCycle(b, false)
	})

	b.Run("wal_mode", func(b *testing.B) {
		benchmarkFrontierCycle(b, true)
	})
}

func benchmarkFrontierCycle(b *testing.B, useWAL bool) {
	b.Helper()

	db := openBenchDB(b, useWAL)
	ctx := context.Background()
	frontier := sqlite.NewFrontier(db)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := frontier.AddSeed(ctx, []string{fmt.Sprintf("https://example.com/page%d", i)}); err != nil {
			b.Fatal(err)
		}
		task, ok, err := frontier.Next(ctx)
		if err != nil || !ok {
			b.Fatalf("next: ok=%v err=%v", ok, err)
		}
		if err := frontier.MarkVisited(ctx, task.URL); err != nil {
			b.Fatal(err)
		}
	}
}
