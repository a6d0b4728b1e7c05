// Package fs provides file-based record storage.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
)

// Ensure JSONLStore implements spider.Storage at compile time.
var _ spider.Storage = (*JSONLStore)(nil)

// JSONLStore appends one JSON object per record to a file.
// Saves from concurrent workers are serialized; each line is written whole.
type JSONLStore struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewJSONLStore creates a new JSONLStore writing to path.
// The file and its parent directories are created on first Save.
func NewJSONLStore(path string) *JSONLStore {
	return &JSONLStore{path: path}
}

// Path returns the output file path.
func (s *JSONLStore) Path() string {
	return s.path
}

// Save appends r as a single line. ID, ContentHash and FetchedAt are
// filled when empty.
func (s *JSONLStore) Save(ctx context.Context, r *spider.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
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

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.URL, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		s.file = f
	}

	_, err = s.file.Write(line)
	return err
}

// Close closes the underlying file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
