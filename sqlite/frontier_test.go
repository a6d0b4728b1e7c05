package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/sqlite"
)

func TestFrontier_admission(t *testing.T) {
	t.Parallel()

	t.Run("normalizes and deduplicates", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		n, err := f.AddSeed(ctx, []string{"http://a.test", "HTTP://A.test/#top", "bogus"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = f.AddDiscovered(ctx, []string{"http://a.test/", "http://a.test/1"}, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		rec, err := f.Lookup(ctx, "http://a.test/1")
		require.NoError(t, err)
		assert.Equal(t, spider.URLRecord{URL: "http://a.test/1", State: spider.StatePending, Depth: 1}, *rec)
	})

	t.Run("empty input adds nothing", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		n, err := f.AddSeed(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("terminal urls are never readmitted", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		_, err := f.AddSeed(ctx, []string{"http://a.test/"})
		require.NoError(t, err)
		task, ok, err := f.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, f.MarkFailed(ctx, task.URL))

		n, err := f.AddSeed(ctx, []string{"http://a.test/"})
		require.NoError(t, err)
		assert.Zero(t, n)

		rec, err := f.Lookup(ctx, "http://a.test/")
		require.NoError(t, err)
		assert.Equal(t, spider.StateFailed, rec.State)
	})
}

func TestFrontier_Next(t *testing.T) {
	t.Parallel()

	t.Run("orders by depth then insertion", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		_, err := f.AddDiscovered(ctx, []string{"http://a.test/deep"}, 0)
		require.NoError(t, err)
		_, err = f.AddSeed(ctx, []string{"http://a.test/b", "http://a.test/a"})
		require.NoError(t, err)

		var got []string
		for {
			task, ok, err := f.Next(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, task.URL)
		}
		assert.Equal(t, []string{"http://a.test/b", "http://a.test/a", "http://a.test/deep"}, got)
	})

	t.Run("claims increment attempts", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		_, err := f.AddSeed(ctx, []string{"http://a.test/"})
		require.NoError(t, err)
		task, ok, err := f.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, spider.CrawlTask{URL: "http://a.test/", Depth: 0}, task)

		rec, err := f.Lookup(ctx, task.URL)
		require.NoError(t, err)
		assert.Equal(t, spider.StateInProgress, rec.State)
		assert.Equal(t, 1, rec.Attempts)
	})

	t.Run("empty frontier", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		_, ok, err := f.Next(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent claims hand out each url once", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		urls := make([]string, 50)
		for i := range urls {
			urls[i] = fmt.Sprintf("http://a.test/%d", i)
		}
		_, err := f.AddSeed(ctx, urls)
		require.NoError(t, err)

		var mu sync.Mutex
		seen := make(map[string]int)
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					task, ok, err := f.Next(ctx)
					if err != nil || !ok {
						return
					}
					mu.Lock()
					seen[task.URL]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, 50)
		for u, n := range seen {
			assert.Equal(t, 1, n, u)
		}
	})
}

func TestFrontier_marks(t *testing.T) {
	t.Parallel()

	t.Run("only in-progress urls transition", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		_, err := f.AddSeed(ctx, []string{"http://a.test/", "http://a.test/pending"})
		require.NoError(t, err)
		task, _, err := f.Next(ctx)
		require.NoError(t, err)

		require.NoError(t, f.MarkVisited(ctx, task.URL))
		require.NoError(t, f.MarkFailed(ctx, task.URL))
		require.NoError(t, f.MarkVisited(ctx, "http://a.test/pending"))
		require.NoError(t, f.MarkVisited(ctx, "http://unknown.test/"))

		rec, err := f.Lookup(ctx, task.URL)
		require.NoError(t, err)
		assert.Equal(t, spider.StateVisited, rec.State)

		rec, err = f.Lookup(ctx, "http://a.test/pending")
		require.NoError(t, err)
		assert.Equal(t, spider.StatePending, rec.State)
	})

	t.Run("snapshot and stats", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		ctx := context.Background()

		_, err := f.AddSeed(ctx, []string{"http://a.test/z", "http://a.test/a", "http://a.test/f", "http://a.test/p"})
		require.NoError(t, err)

		for _, mark := range []func(context.Context, string) error{f.MarkVisited, f.MarkVisited, f.MarkFailed} {
			task, ok, err := f.Next(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, mark(ctx, task.URL))
		}

		visited, err := f.SnapshotVisited(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"http://a.test/a", "http://a.test/z"}, visited)

		stats, err := f.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, spider.FrontierStats{Pending: 1, Visited: 2, Failed: 1}, stats)
	})

	t.Run("snapshot of empty frontier is empty", func(t *testing.T) {
		t.Parallel()

		f := sqlite.NewFrontier(setupTestDB(t))
		visited, err := f.SnapshotVisited(context.Background())
		require.NoError(t, err)
		assert.Empty(t, visited)
	})
}

func TestFrontier_Lookup(t *testing.T) {
	t.Parallel()

	f := sqlite.NewFrontier(setupTestDB(t))
	ctx := context.Background()

	_, err := f.Lookup(ctx, "http://missing.test/")
	assert.Equal(t, spider.ENOTFOUND, spider.ErrorCode(err))

	_, err = f.Lookup(ctx, "ftp://x")
	assert.Equal(t, spider.EINVALID, spider.ErrorCode(err))
}
