package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanchengsi/spider"
)

// Ensure LoggingStorage implements spider.Storage.
var _ spider.Storage = (*LoggingStorage)(nil)

// LoggingStorage wraps a Storage with debug logging.
type LoggingStorage struct {
	next   spider.Storage
	logger *slog.Logger
}

// NewLoggingStorage creates a new LoggingStorage.
func NewLoggingStorage(next spider.Storage, logger *slog.Logger) *LoggingStorage {
	return &LoggingStorage{next: next, logger: logger}
}

// Save delegates to the wrapped storage and logs the operation.
func (s *LoggingStorage) Save(ctx context.Context, record *spider.Record) (err error) {
	defer func(begin time.Time) {
		s.logger.Info("save",
			"url", record.URL,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Save(ctx, record)
}
