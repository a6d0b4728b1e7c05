package slog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/mock"
	spiderslog "github.com/yanchengsi/spider/slog"
)

func TestLoggingStorage_Save(t *testing.T) {
	t.Parallel()

	t.Run("logs save with url and duration", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		var saved *spider.Record
		inner := &mock.Storage{
			SaveFn: func(ctx context.Context, record *spider.Record) error {
				saved = record
				return nil
			},
		}

		storage := spiderslog.NewLoggingStorage(inner, logger)
		rec := &spider.Record{URL: "https://example.com/a"}
		err := storage.Save(context.Background(), rec)

		require.NoError(t, err)
		assert.Same(t, rec, saved)
		output := buf.String()
		assert.Contains(t, output, "msg=save")
		assert.Contains(t, output, "url=https://example.com/a")
		assert.Contains(t, output, "duration=")
	})

	t.Run("logs error on failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Storage{
			SaveFn: func(ctx context.Context, record *spider.Record) error {
				return errors.New("disk full")
			},
		}

		storage := spiderslog.NewLoggingStorage(inner, logger)
		err := storage.Save(context.Background(), &spider.Record{URL: "https://example.com/a"})

		require.Error(t, err)
		assert.Contains(t, buf.String(), "err=\"disk full\"")
	})
}
