package spider

import (
	"context"
	"time"
)

// Record is the structured result of parsing a fetched page.
type Record struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Meta        map[string]string `json:"meta"`
	Images      []string          `json:"images"`
	Links       []string          `json:"links"`
	ContentHash string            `json:"contentHash"`
	Depth       int               `json:"depth"`
	FetchedAt   time.Time         `json:"fetchedAt"`
}

// Validate returns an error if the record contains invalid fields.
func (r *Record) Validate() error {
	if r.URL == "" {
		return Errorf(EINVALID, "record URL required")
	}
	return nil
}

// Parser turns fetched HTML into a Record and its outgoing links.
type Parser interface {
	// Parse extracts title, body, meta, images and links from html.
	// The baseURL is used to resolve relative URLs.
	Parse(html string, baseURL string) (*Record, error)

	// ExtractLinks returns the absolute URLs of all links in html.
	ExtractLinks(html string, baseURL string) ([]string, error)
}

// ExtractResult holds the main content extracted from an HTML page.
type ExtractResult struct {
	// Title is the page title extracted from metadata.
	Title string

	// Text is the main content as plain text, with boilerplate
	// (nav, footer, sidebar, ads) removed.
	Text string

	// ContentHTML is the main content as clean HTML. It may be empty.
	ContentHTML string
}

// Extractor extracts main content from HTML pages, removing boilerplate.
type Extractor interface {
	Extract(html string) (*ExtractResult, error)
}

// Converter converts HTML to Markdown.
type Converter interface {
	// Convert transforms HTML content into Markdown.
	Convert(html string) (string, error)
}

// Storage persists parsed records.
type Storage interface {
	Save(ctx context.Context, record *Record) error
}

// RecordFilter selects stored records. Zero fields match everything.
type RecordFilter struct {
	URL *string

	// Query holds whitespace-separated terms. A record matches when every
	// term occurs in its title or body, ignoring ASCII case.
	Query string

	Limit  int
	Offset int
}

// RecordFinder reads back stored records.
type RecordFinder interface {
	// FindRecords returns matching records ordered by URL.
	FindRecords(ctx context.Context, filter RecordFilter) ([]*Record, error)

	// CountRecords returns the number of records matching filter,
	// ignoring Limit and Offset.
	CountRecords(ctx context.Context, filter RecordFilter) (int, error)
}
