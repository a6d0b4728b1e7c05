// Package slog wraps spider services with structured logging.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanchengsi/spider"
)

// Ensure LoggingFetcher implements spider.Fetcher.
var _ spider.Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a Fetcher with debug logging.
type LoggingFetcher struct {
	next   spider.Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next spider.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch logs the URL being fetched and delegates to the wrapped fetcher.
func (f *LoggingFetcher) Fetch(ctx context.Context, req *spider.FetchRequest) (resp *spider.FetchResponse, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", req.URL,
			"proxy", proxyAddr(req.Proxy),
			"duration", time.Since(begin),
		}
		if resp != nil {
			attrs = append(attrs, "status", resp.StatusCode, "bytes", len(resp.Body))
		}
		attrs = append(attrs, "err", err)
		f.logger.Info("fetch", attrs...)
	}(time.Now())
	return f.next.Fetch(ctx, req)
}

// Close delegates to the wrapped fetcher.
func (f *LoggingFetcher) Close() error {
	return f.next.Close()
}

func proxyAddr(p *spider.Proxy) string {
	if p == nil {
		return "direct"
	}
	return p.Address
}
