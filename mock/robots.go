package mock

import (
	"context"
	"time"

	"github.com/yanchengsi/spider"
)

var _ spider.RobotsChecker = (*RobotsChecker)(nil)

// RobotsChecker is a mock implementation of spider.RobotsChecker.
type RobotsChecker struct {
	CanFetchFn   func(ctx context.Context, url string) bool
	CrawlDelayFn func(ctx context.Context, url string) time.Duration
}

func (r *RobotsChecker) CanFetch(ctx context.Context, url string) bool {
	return r.CanFetchFn(ctx, url)
}

func (r *RobotsChecker) CrawlDelay(ctx context.Context, url string) time.Duration {
	return r.CrawlDelayFn(ctx, url)
}

var _ spider.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter is a mock implementation of spider.DomainLimiter.
type DomainLimiter struct {
	WaitFn func(ctx context.Context, domain string) error
}

func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return l.WaitFn(ctx, domain)
}
