package sqlite

import (
	"fmt"
	"strings"
	"time"
)

// Timestamps are stored as UTC RFC3339 text with nanoseconds.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nowText() string {
	return formatTime(time.Now())
}

// parseTime reads a stored timestamp. field names the column in errors.
func parseTime(value, field string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return t, nil
}

// appendPagination adds LIMIT/OFFSET for positive values. SQLite only
// accepts OFFSET after a LIMIT, so an offset alone is paired with LIMIT -1.
func appendPagination(query *strings.Builder, args *[]any, limit, offset int) {
	switch {
	case limit > 0:
		query.WriteString(" LIMIT ?")
		*args = append(*args, limit)
	case offset > 0:
		query.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		query.WriteString(" OFFSET ?")
		*args = append(*args, offset)
	}
}
