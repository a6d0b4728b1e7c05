package spider

import (
	"context"
	"time"
)

// DefaultCrawlDelay is the crawl delay used when robots.txt does not advise one.
const DefaultCrawlDelay = 1 * time.Second

// DefaultRobotsTTL is how long a fetched robots.txt ruleset stays valid.
const DefaultRobotsTTL = time.Hour

// RobotsChecker answers per-site politeness questions from robots.txt.
type RobotsChecker interface {
	// CanFetch reports whether url may be crawled. Implementations fail open
	// when robots.txt cannot be retrieved.
	CanFetch(ctx context.Context, url string) bool

	// CrawlDelay returns the delay the site advises between requests,
	// or DefaultCrawlDelay if none is specified.
	CrawlDelay(ctx context.Context, url string) time.Duration
}

// DomainLimiter provides per-domain rate limiting.
type DomainLimiter interface {
	// Wait blocks until the rate limit allows a request to the domain.
	// Returns an error if the context is canceled.
	Wait(ctx context.Context, domain string) error
}
