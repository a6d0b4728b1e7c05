// Package robotstxt provides a caching robots.txt gate backed by
// github.com/temoto/robotstxt.
package robotstxt

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/yanchengsi/spider"
	"golang.org/x/sync/singleflight"
)

// Defaults for Checker.
const (
	DefaultUserAgent = "spider/1.0"
	DefaultTimeout   = 5 * time.Second

	maxRobotsSize = 512 << 10
)

var _ spider.RobotsChecker = (*Checker)(nil)

// Checker answers robots.txt questions per "scheme://host", fetching each
// host's file at most once per TTL. Hosts whose file cannot be fetched are
// treated as allowing everything until the entry expires.
type Checker struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	cache  map[string]entry
	flight singleflight.Group
}

// entry is a cached ruleset. A nil group allows everything.
type entry struct {
	fetched time.Time
	group   *robotstxt.Group
}

// Option configures a Checker.
type Option func(*Checker)

// WithUserAgent sets the agent matched against robots.txt groups and sent
// when fetching the file.
func WithUserAgent(ua string) Option {
	return func(c *Checker) { c.userAgent = ua }
}

// WithTTL sets how long a fetched ruleset is trusted.
func WithTTL(d time.Duration) Option {
	return func(c *Checker) { c.ttl = d }
}

// WithTimeout bounds each robots.txt fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithClient sets the HTTP client used for fetches.
func WithClient(client *http.Client) Option {
	return func(c *Checker) { c.client = client }
}

// WithLogger sets the logger for fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// WithClock replaces time.Now for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// NewChecker creates a Checker with an empty cache.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		client:    http.DefaultClient,
		userAgent: DefaultUserAgent,
		ttl:       spider.DefaultRobotsTTL,
		timeout:   DefaultTimeout,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		cache:     make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanFetch reports whether rawURL may be fetched. URLs that cannot be
// parsed are never fetchable.
func (c *Checker) CanFetch(ctx context.Context, rawURL string) bool {
	normalized, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}

	group := c.group(ctx, u.Scheme+"://"+u.Host)
	if group == nil {
		return true
	}
	return group.Test(u.RequestURI())
}

// CrawlDelay returns the Crawl-delay of the matching group, or
// spider.DefaultCrawlDelay when the file sets none.
func (c *Checker) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	key, err := spider.DomainKey(rawURL)
	if err != nil {
		return spider.DefaultCrawlDelay
	}

	group := c.group(ctx, key)
	if group == nil || group.CrawlDelay <= 0 {
		return spider.DefaultCrawlDelay
	}
	return group.CrawlDelay
}

// Purge evicts the cached ruleset for a "scheme://host" key.
func (c *Checker) Purge(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
}

func (c *Checker) group(ctx context.Context, key string) *robotstxt.Group {
	c.mu.RLock()
	e, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetched) < c.ttl {
		return e.group
	}

	// Concurrent misses for one host share a single fetch.
	v, _, _ := c.flight.Do(key, func() (any, error) {
		group := c.fetch(ctx, key)
		c.mu.Lock()
		c.cache[key] = entry{fetched: c.now(), group: group}
		c.mu.Unlock()
		return group, nil
	})
	group, _ := v.(*robotstxt.Group)
	return group
}

// fetch retrieves and parses key's robots.txt. Any failure yields nil.
func (c *Checker) fetch(ctx context.Context, key string) *robotstxt.Group {
	logger := c.logger.With("robots", key+"/robots.txt")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		logger.Warn("build robots request, allowing all", "err", err)
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("fetch robots.txt failed, allowing all", "err", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("robots.txt unavailable, allowing all", "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		logger.Warn("read robots.txt failed, allowing all", "err", err)
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logger.Warn("parse robots.txt failed, allowing all", "err", err)
		return nil
	}
	return data.FindGroup(c.userAgent)
}
