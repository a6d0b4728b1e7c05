package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
)

var (
	_ spider.Storage      = (*RecordStore)(nil)
	_ spider.RecordFinder = (*RecordStore)(nil)
)

// RecordStore persists parsed records in the pages table. Saving a URL a
// second time replaces the earlier record and keeps its ID.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Save upserts r by URL. ID, ContentHash and FetchedAt are filled when empty.
func (s *RecordStore) Save(ctx context.Context, r *spider.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.ContentHash == "" {
		r.ContentHash = crawl.ComputeHash(r.Body)
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(nonNilMap(r.Meta))
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	images, err := json.Marshal(nonNilSlice(r.Images))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	links, err := json.Marshal(nonNilSlice(r.Links))
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO pages (id, url, title, body, meta, images, links, content_hash, depth, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			meta = excluded.meta,
			images = excluded.images,
			links = excluded.links,
			content_hash = excluded.content_hash,
			depth = excluded.depth,
			fetched_at = excluded.fetched_at
		RETURNING id
	`,
		r.ID,
		r.URL,
		r.Title,
		r.Body,
		string(meta),
		string(images),
		string(links),
		r.ContentHash,
		r.Depth,
		formatTime(r.FetchedAt),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("save record %s: %w", r.URL, err)
	}

	r.ID = id
	return nil
}

// FindRecords retrieves records matching filter, ordered by URL.
func (s *RecordStore) FindRecords(ctx context.Context, filter spider.RecordFilter) ([]*spider.Record, error) {
	var query strings.Builder
	query.WriteString(`
		SELECT id, url, title, body, meta, images, links, content_hash, depth, fetched_at
		FROM pages`)
	args := whereRecords(&query, filter)
	query.WriteString(" ORDER BY url ASC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()

	records := make([]*spider.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountRecords returns the number of records matching filter. Limit and
// Offset are ignored.
func (s *RecordStore) CountRecords(ctx context.Context, filter spider.RecordFilter) (int, error) {
	var query strings.Builder
	query.WriteString("SELECT COUNT(*) FROM pages")
	args := whereRecords(&query, filter)

	var n int
	if err := s.db.QueryRowContext(ctx, query.String(), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// whereRecords appends the WHERE clause for filter and returns its args.
func whereRecords(query *strings.Builder, filter spider.RecordFilter) []any {
	var conds []string
	var args []any
	if filter.URL != nil {
		conds = append(conds, "url = ?")
		args = append(args, *filter.URL)
	}
	for _, term := range strings.Fields(filter.Query) {
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		pattern := "%" + likeEscaper.Replace(term) + "%"
		args = append(args, pattern, pattern)
	}
	if len(conds) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conds, " AND "))
	}
	return args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanRecord(rows *sql.Rows) (*spider.Record, error) {
	var r spider.Record
	var meta, images, links, fetchedAt string
	if err := rows.Scan(
		&r.ID,
		&r.URL,
		&r.Title,
		&r.Body,
		&meta,
		&images,
		&links,
		&r.ContentHash,
		&r.Depth,
		&fetchedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal([]byte(links), &r.Links); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}

	var err error
	r.FetchedAt, err = parseTime(fetchedAt, "fetched_at")
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
