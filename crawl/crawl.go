// Package crawl provides the fetch orchestrator and the in-memory frontier.
// A Crawler pulls tasks from a spider.Frontier and runs each through the
// depth guard, the robots.txt gate, proxy selection, the fetch itself,
// parsing, link discovery and storage.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/yanchengsi/spider"
	"golang.org/x/sync/errgroup"
)

// Default settings for configuration. Crawler takes MaxDepth, Interval and
// Jitter literally, so a zero value means seeds only and no pause.
const (
	DefaultMaxDepth = 3
	DefaultInterval = 1 * time.Second
	DefaultJitter   = 1 * time.Second
)

// Defaults applied when the corresponding Crawler field is zero.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultIdleWait     = 5 * time.Second
)

// DefaultHeaders are sent with every page fetch.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2",
	}
}

// Mode controls what a worker does when the frontier has nothing to hand out.
type Mode int

const (
	// ModeBatch stops once no URL is pending or in progress anywhere.
	ModeBatch Mode = iota
	// ModeServer keeps polling until the context is canceled.
	ModeServer
)

// Outcome is the result of handling a single task.
type Outcome int

const (
	OutcomeVisited Outcome = iota
	OutcomeFailed
	OutcomeSkippedDepth
	OutcomeSkippedPolicy
	// OutcomeAbandoned means ctx ended before the fetch settled. The URL is
	// left IN_PROGRESS.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVisited:
		return "visited"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkippedDepth:
		return "skipped_depth"
	case OutcomeSkippedPolicy:
		return "skipped_policy"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result holds the outcome counts of one or more worker loops.
type Result struct {
	Visited       int
	Failed        int
	SkippedDepth  int
	SkippedPolicy int
	Bytes         int
}

// Total returns the number of tasks handled.
func (r Result) Total() int {
	return r.Visited + r.Failed + r.SkippedDepth + r.SkippedPolicy
}

// ProgressEvent reports the outcome of one task.
type ProgressEvent struct {
	URL     string
	Depth   int
	Outcome Outcome
	Err     error
}

// ProgressFunc is a callback for reporting crawl progress.
// It may be called from several workers at once.
type ProgressFunc func(event ProgressEvent)

// Crawler orchestrates fetching for URLs handed out by a Frontier.
// Frontier, Fetcher and Parser are required; every other collaborator is
// optional and skipped when nil.
type Crawler struct {
	Frontier    spider.Frontier
	Robots      spider.RobotsChecker
	Proxies     spider.ProxyPool
	Fetcher     spider.Fetcher
	Parser      spider.Parser
	Storage     spider.Storage
	RateLimiter spider.DomainLimiter
	Logger      *slog.Logger

	// MaxDepth is the deepest depth that is fetched. Deeper tasks are
	// retired as visited without a request.
	MaxDepth     int
	Headers      map[string]string
	FetchTimeout time.Duration

	// Interval plus a random share of Jitter is slept after every task.
	Interval time.Duration
	Jitter   time.Duration
	IdleWait time.Duration
	Mode     Mode

	Progress ProgressFunc

	// Sleep replaces the context-aware sleep, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now replaces time.Now, mainly for tests.
	Now func() time.Time
}

// errRobotsDenied is reported to progress callbacks for policy skips.
var errRobotsDenied = errors.New("disallowed by robots.txt")

// Handle processes a single task and retires it in the frontier.
// It never returns an error; failures are folded into the outcome.
// If ctx ends while the task waits or fetches, the task is abandoned
// without being retired. Pass context.WithoutCancel to always finish it.
func (c *Crawler) Handle(ctx context.Context, task spider.CrawlTask) Outcome {
	logger := c.logger().With("url", task.URL, "depth", task.Depth)

	outcome, _, err := c.handle(ctx, logger, task)
	if c.Progress != nil {
		c.Progress(ProgressEvent{URL: task.URL, Depth: task.Depth, Outcome: outcome, Err: err})
	}
	return outcome
}

func (c *Crawler) handle(ctx context.Context, logger *slog.Logger, task spider.CrawlTask) (Outcome, int, error) {
	if task.Depth > c.MaxDepth {
		logger.Debug("depth exceeded", "max_depth", c.MaxDepth)
		c.markVisited(ctx, logger, task.URL)
		return OutcomeSkippedDepth, 0, nil
	}

	if c.Robots != nil && !c.Robots.CanFetch(ctx, task.URL) {
		logger.Info("disallowed by robots.txt")
		c.markFailed(ctx, logger, task.URL)
		return OutcomeSkippedPolicy, 0, errRobotsDenied
	}

	var proxy *spider.Proxy
	if c.Proxies != nil {
		proxy = c.Proxies.Select(ctx)
	}

	if c.Robots != nil {
		if err := c.sleep(ctx, c.Robots.CrawlDelay(ctx, task.URL)); err != nil {
			return c.abandonOrFail(ctx, logger, task.URL, err)
		}
	}

	if c.RateLimiter != nil {
		domain, err := spider.DomainKey(task.URL)
		if err == nil {
			err = c.RateLimiter.Wait(ctx, domain)
		}
		if err != nil {
			logger.Warn("rate limiter", "err", err)
			return c.abandonOrFail(ctx, logger, task.URL, err)
		}
	}

	resp, err := c.fetch(ctx, task.URL, proxy)
	if err == nil && !resp.OK() {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err != nil && ctx.Err() != nil {
		return c.abandonOrFail(ctx, logger, task.URL, err)
	}
	if err != nil {
		logger.Warn("fetch failed", "proxy", proxyAddr(proxy), "err", err)
		c.recordProxy(ctx, proxy, false)
		c.markFailed(ctx, logger, task.URL)
		return OutcomeFailed, 0, err
	}
	c.recordProxy(ctx, proxy, true)

	record := c.parse(logger, task, resp.Body)
	if n, err := c.Frontier.AddDiscovered(ctx, record.Links, task.Depth); err != nil {
		logger.Error("add discovered", "err", err)
	} else {
		logger.Debug("links discovered", "links", len(record.Links), "admitted", n)
	}

	if c.Storage != nil {
		if err := c.Storage.Save(ctx, record); err != nil {
			logger.Error("save record", "err", err)
		}
	}

	c.markVisited(ctx, logger, task.URL)
	return OutcomeVisited, len(resp.Body), nil
}

func (c *Crawler) fetch(ctx context.Context, url string, proxy *spider.Proxy) (*spider.FetchResponse, error) {
	timeout := c.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Fetcher.Fetch(ctx, &spider.FetchRequest{
		URL:     url,
		Proxy:   proxy,
		Headers: c.Headers,
	})
}

// parse builds the record for a fetched page. A parser failure still yields
// a record carrying the URL and depth.
func (c *Crawler) parse(logger *slog.Logger, task spider.CrawlTask, body string) *spider.Record {
	record, err := c.Parser.Parse(body, task.URL)
	if err != nil || record == nil {
		logger.Warn("parse failed, storing partial record", "err", err)
		record = &spider.Record{}
	}

	links, err := c.Parser.ExtractLinks(body, task.URL)
	if err != nil {
		logger.Warn("extract links", "err", err)
	}
	resolved := make([]string, 0, len(links))
	for _, href := range links {
		if u, err := spider.ResolveURL(task.URL, href); err == nil {
			resolved = append(resolved, u)
		}
	}

	record.URL = task.URL
	record.Depth = task.Depth
	record.Links = spider.NormalizeAll(resolved)
	record.ContentHash = ComputeHash(body)
	record.FetchedAt = c.now()
	return record
}

func (c *Crawler) recordProxy(ctx context.Context, proxy *spider.Proxy, success bool) {
	if c.Proxies == nil || proxy == nil {
		return
	}
	c.Proxies.RecordResult(ctx, proxy, success)
}

func (c *Crawler) markVisited(ctx context.Context, logger *slog.Logger, url string) {
	if err := c.Frontier.MarkVisited(ctx, url); err != nil {
		logger.Error("mark visited", "err", err)
	}
}

// abandonOrFail retires url as FAILED unless ctx has ended, in which case
// the URL stays IN_PROGRESS.
func (c *Crawler) abandonOrFail(ctx context.Context, logger *slog.Logger, url string, err error) (Outcome, int, error) {
	if ctx.Err() != nil {
		logger.Info("task abandoned", "err", err)
		return OutcomeAbandoned, 0, err
	}
	c.markFailed(ctx, logger, url)
	return OutcomeFailed, 0, err
}

func (c *Crawler) markFailed(ctx context.Context, logger *slog.Logger, url string) {
	if err := c.Frontier.MarkFailed(ctx, url); err != nil {
		logger.Error("mark failed", "err", err)
	}
}

// Run runs a single worker loop until the frontier drains (ModeBatch) or
// ctx is canceled. Tasks already being handled when ctx is canceled run to
// completion under their own timeouts.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	var res counters
	err := c.run(ctx, &res)
	r := res.result()
	return &r, err
}

// RunWorkers runs n worker loops concurrently and merges their results.
func (c *Crawler) RunWorkers(ctx context.Context, n int) (*Result, error) {
	if n <= 0 {
		n = 1
	}

	var res counters
	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			return c.run(gctx, &res)
		})
	}
	err := g.Wait()
	r := res.result()
	return &r, err
}

func (c *Crawler) run(ctx context.Context, res *counters) error {
	if c.Frontier == nil || c.Fetcher == nil || c.Parser == nil {
		return spider.Errorf(spider.EINVALID, "crawler requires a frontier, fetcher and parser")
	}
	logger := c.logger()

	for ctx.Err() == nil {
		task, ok, err := c.Frontier.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("next task", "err", err)
			_ = c.sleep(ctx, c.idleWait())
			continue
		}

		if !ok {
			if c.Mode == ModeBatch && c.drained(ctx, logger) {
				return nil
			}
			_ = c.sleep(ctx, c.idleWait())
			continue
		}

		logger := logger.With("url", task.URL, "depth", task.Depth)
		outcome, n, err := c.handle(context.WithoutCancel(ctx), logger, task)
		if c.Progress != nil {
			c.Progress(ProgressEvent{URL: task.URL, Depth: task.Depth, Outcome: outcome, Err: err})
		}
		res.add(outcome, n)

		_ = c.sleep(ctx, c.pause())
	}
	return nil
}

// drained reports whether no URL is pending or held by any worker.
func (c *Crawler) drained(ctx context.Context, logger *slog.Logger) bool {
	stats, err := c.Frontier.Stats(ctx)
	if err != nil {
		logger.Error("frontier stats", "err", err)
		return false
	}
	return stats.Pending == 0 && stats.InProgress == 0
}

func (c *Crawler) pause() time.Duration {
	d := c.Interval
	if c.Jitter > 0 {
		d += rand.N(c.Jitter)
	}
	return d
}

func (c *Crawler) idleWait() time.Duration {
	if c.IdleWait <= 0 {
		return DefaultIdleWait
	}
	return c.IdleWait
}

func (c *Crawler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Crawler) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Crawler) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func proxyAddr(p *spider.Proxy) string {
	if p == nil {
		return ""
	}
	return p.Address
}

// counters accumulates outcomes across concurrent workers.
type counters struct {
	visited       atomic.Int64
	failed        atomic.Int64
	skippedDepth  atomic.Int64
	skippedPolicy atomic.Int64
	bytes         atomic.Int64
}

func (c *counters) add(o Outcome, bytes int) {
	switch o {
	case OutcomeVisited:
		c.visited.Add(1)
	case OutcomeFailed:
		c.failed.Add(1)
	case OutcomeSkippedDepth:
		c.skippedDepth.Add(1)
	case OutcomeSkippedPolicy:
		c.skippedPolicy.Add(1)
	}
	c.bytes.Add(int64(bytes))
}

func (c *counters) result() Result {
	return Result{
		Visited:       int(c.visited.Load()),
		Failed:        int(c.failed.Load()),
		SkippedDepth:  int(c.skippedDepth.Load()),
		SkippedPolicy: int(c.skippedPolicy.Load()),
		Bytes:         int(c.bytes.Load()),
	}
}
