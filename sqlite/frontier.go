package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yanchengsi/spider"
)

// Compile-time interface verification.
var _ spider.Frontier = (*Frontier)(nil)

// Frontier implements spider.Frontier on the urls table. Processes on one
// host may share the database file; dispatch is a single UPDATE ...
// RETURNING statement, so each URL is handed out at most once.
type Frontier struct {
	db *DB
}

// NewFrontier creates a new Frontier.
func NewFrontier(db *DB) *Frontier {
	return &Frontier{db: db}
}

// AddSeed admits urls at depth 0.
func (f *Frontier) AddSeed(ctx context.Context, urls []string) (int, error) {
	return f.admit(ctx, urls, 0)
}

// AddDiscovered admits urls at parentDepth+1.
func (f *Frontier) AddDiscovered(ctx context.Context, urls []string, parentDepth int) (int, error) {
	return f.admit(ctx, urls, parentDepth+1)
}

func (f *Frontier) admit(ctx context.Context, urls []string, depth int) (int, error) {
	normalized := spider.NormalizeAll(urls)
	if len(normalized) == 0 {
		return 0, nil
	}

	tx, err := f.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO urls (url, state, depth, attempts, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(url) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := nowText()
	var added int
	for _, u := range normalized {
		res, err := stmt.ExecContext(ctx, u, spider.StatePending, depth, now)
		if err != nil {
			return 0, fmt.Errorf("admit %s: %w", u, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// Next claims the shallowest, oldest pending URL.
func (f *Frontier) Next(ctx context.Context) (spider.CrawlTask, bool, error) {
	var task spider.CrawlTask
	err := f.db.QueryRowContext(ctx, `
		UPDATE urls
		SET state = ?, attempts = attempts + 1, updated_at = ?
		WHERE rowid = (
			SELECT rowid FROM urls
			WHERE state = ?
			ORDER BY depth ASC, rowid ASC
			LIMIT 1
		)
		RETURNING url, depth
	`, spider.StateInProgress, nowText(), spider.StatePending).Scan(&task.URL, &task.Depth)

	if errors.Is(err, sql.ErrNoRows) {
		return spider.CrawlTask{}, false, nil
	}
	if err != nil {
		return spider.CrawlTask{}, false, fmt.Errorf("next task: %w", err)
	}
	return task, true, nil
}

// MarkVisited moves an in-progress url to visited.
func (f *Frontier) MarkVisited(ctx context.Context, url string) error {
	return f.finish(ctx, url, spider.StateVisited)
}

// MarkFailed moves an in-progress url to failed.
func (f *Frontier) MarkFailed(ctx context.Context, url string) error {
	return f.finish(ctx, url, spider.StateFailed)
}

func (f *Frontier) finish(ctx context.Context, rawURL string, state spider.URLState) error {
	u, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return nil
	}
	_, err = f.db.ExecContext(ctx, `
		UPDATE urls SET state = ?, updated_at = ?
		WHERE url = ? AND state = ?
	`, state, nowText(), u, spider.StateInProgress)
	return err
}

// SnapshotVisited returns the visited URLs in lexical order.
func (f *Frontier) SnapshotVisited(ctx context.Context) ([]string, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT url FROM urls WHERE state = ? ORDER BY url", spider.StateVisited)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visited := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		visited = append(visited, u)
	}
	return visited, rows.Err()
}

// Lookup returns the record for url.
func (f *Frontier) Lookup(ctx context.Context, rawURL string) (*spider.URLRecord, error) {
	u, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	var rec spider.URLRecord
	err = f.db.QueryRowContext(ctx, `
		SELECT url, state, depth, attempts FROM urls WHERE url = ?
	`, u).Scan(&rec.URL, &rec.State, &rec.Depth, &rec.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, spider.Errorf(spider.ENOTFOUND, "url %q not in frontier", u)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Stats counts URLs by state.
func (f *Frontier) Stats(ctx context.Context) (spider.FrontierStats, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM urls GROUP BY state")
	if err != nil {
		return spider.FrontierStats{}, err
	}
	defer rows.Close()

	var s spider.FrontierStats
	for rows.Next() {
		var state spider.URLState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return spider.FrontierStats{}, err
		}
		switch state {
		case spider.StatePending:
			s.Pending = n
		case spider.StateInProgress:
			s.InProgress = n
		case spider.StateVisited:
			s.Visited = n
		case spider.StateFailed:
			s.Failed = n
		}
	}
	return s, rows.Err()
}
