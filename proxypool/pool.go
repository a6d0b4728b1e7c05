// Package proxypool maintains a scored pool of forward proxies harvested
// from public listings.
package proxypool

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/yanchengsi/spider"
	spiderhttp "github.com/yanchengsi/spider/http"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxProxies      = 100
	DefaultCheckInterval   = 30 * time.Minute
	DefaultValidateTimeout = 5 * time.Second
	DefaultEchoURL         = "http://httpbin.org/ip"
	DefaultRefreshWorkers  = 5
	DefaultCheckWorkers    = 10
	DefaultSourceTimeout   = 10 * time.Second
)

var _ spider.ProxyPool = (*Pool)(nil)

// Config controls pool capacity, validation and fan-out.
type Config struct {
	Sources         []Source
	MaxProxies      int
	CheckInterval   time.Duration
	ValidateTimeout time.Duration
	EchoURL         string
	RefreshWorkers  int
	CheckWorkers    int
	// RetryDelays are the waits between attempts to fetch a source.
	RetryDelays []time.Duration
}

// ClientFunc builds the HTTP client that routes through a proxy.
type ClientFunc func(p *spider.Proxy, timeout time.Duration) (*http.Client, error)

// Pool is a bounded set of proxies keyed by address. Scores move with
// reported outcomes and selection prefers high scores and low latency.
// It is safe for concurrent use.
type Pool struct {
	sources         []Source
	maxProxies      int
	checkInterval   time.Duration
	validateTimeout time.Duration
	echoURL         string
	refreshWorkers  int
	checkWorkers    int
	retryDelays     []time.Duration

	logger       *slog.Logger
	now          func() time.Time
	sourceClient *http.Client
	clientFor    ClientFunc

	mu      sync.Mutex
	proxies map[string]*spider.Proxy
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithSourceClient sets the client used to download source listings.
func WithSourceClient(c *http.Client) Option {
	return func(p *Pool) { p.sourceClient = c }
}

// WithClientFunc replaces how validation clients are built.
func WithClientFunc(fn ClientFunc) Option {
	return func(p *Pool) { p.clientFor = fn }
}

// New creates an empty pool.
func New(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		sources:         cfg.Sources,
		maxProxies:      orDefault(cfg.MaxProxies, DefaultMaxProxies),
		checkInterval:   orDefault(cfg.CheckInterval, DefaultCheckInterval),
		validateTimeout: orDefault(cfg.ValidateTimeout, DefaultValidateTimeout),
		echoURL:         cfg.EchoURL,
		refreshWorkers:  orDefault(cfg.RefreshWorkers, DefaultRefreshWorkers),
		checkWorkers:    orDefault(cfg.CheckWorkers, DefaultCheckWorkers),
		retryDelays:     cfg.RetryDelays,
		logger:          slog.New(slog.DiscardHandler),
		now:             time.Now,
		sourceClient:    &http.Client{Timeout: DefaultSourceTimeout},
		clientFor:       spiderhttp.ClientForProxy,
		proxies:         make(map[string]*spider.Proxy),
	}
	if p.echoURL == "" {
		p.echoURL = DefaultEchoURL
	}
	if p.retryDelays == nil {
		p.retryDelays = []time.Duration{time.Second, 2 * time.Second}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Add admits proxies not already pooled and returns how many remain after
// capacity eviction.
func (p *Pool) Add(proxies ...spider.Proxy) int {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var added []string
	for _, px := range proxies {
		if px.Address == "" {
			continue
		}
		if _, ok := p.proxies[px.Address]; ok {
			continue
		}
		entry := px
		if entry.Protocol == "" {
			entry.Protocol = spider.ProtocolHTTP
		}
		if entry.AddedAt.IsZero() {
			entry.AddedAt = now
		}
		p.proxies[entry.Address] = &entry
		added = append(added, entry.Address)
	}
	p.evictLocked()

	var n int
	for _, addr := range added {
		if _, ok := p.proxies[addr]; ok {
			n++
		}
	}
	return n
}

// Refresh downloads every source and admits the addresses found. A failing
// source is logged and skipped.
func (p *Pool) Refresh(ctx context.Context) (int, error) {
	var (
		mu    sync.Mutex
		found []spider.Proxy
	)
	now := p.now()

	var g errgroup.Group
	g.SetLimit(p.refreshWorkers)
	for _, src := range p.sources {
		g.Go(func() error {
			addrs, err := p.fetchSource(ctx, src)
			if err != nil {
				p.logger.Warn("proxy source failed", "source", src.URL, "err", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, addr := range addrs {
				found = append(found, *spider.NewProxy(addr, src.Protocol, now))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := p.Add(found...)
	p.logger.Info("proxy pool refreshed", "found", len(found), "added", n, "size", p.Len())
	return n, nil
}

// evictLocked drops the lowest scored, then oldest, proxies over capacity.
func (p *Pool) evictLocked() {
	excess := len(p.proxies) - p.maxProxies
	if excess <= 0 {
		return
	}

	all := make([]*spider.Proxy, 0, len(p.proxies))
	for _, px := range p.proxies {
		all = append(all, px)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		if !all[i].AddedAt.Equal(all[j].AddedAt) {
			return all[i].AddedAt.Before(all[j].AddedAt)
		}
		return all[i].Address < all[j].Address
	})
	for _, px := range all[:excess] {
		delete(p.proxies, px.Address)
	}
}

// Validate requests the echo URL through px and records the round trip
// latency on the pooled entry. It reports whether the proxy answered 200.
func (p *Pool) Validate(ctx context.Context, px *spider.Proxy) bool {
	if px == nil {
		return false
	}
	logger := p.logger.With("proxy", px.Address)

	client, err := p.clientFor(px, p.validateTimeout)
	if err != nil {
		logger.Debug("proxy client", "err", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.echoURL, nil)
	if err != nil {
		logger.Debug("validate request", "err", err)
		return false
	}

	begin := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("proxy validation failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	latency := time.Since(begin)

	p.mu.Lock()
	if entry, ok := p.proxies[px.Address]; ok {
		entry.Latency = latency
	}
	p.mu.Unlock()

	logger.Debug("proxy validated", "status", resp.StatusCode, "duration", latency)
	return resp.StatusCode == http.StatusOK
}

// Select returns a copy of the best eligible proxy, refreshing first when
// the pool is empty. A proxy is eligible once more than the check interval
// has passed since it was last used. Nil means fetch directly.
func (p *Pool) Select(ctx context.Context) *spider.Proxy {
	if p.Len() == 0 && len(p.sources) > 0 {
		if _, err := p.Refresh(ctx); err != nil {
			p.logger.Warn("proxy refresh", "err", err)
		}
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var best *spider.Proxy
	for _, px := range p.proxies {
		if !px.LastCheck.IsZero() && now.Sub(px.LastCheck) <= p.checkInterval {
			continue
		}
		if best == nil || ranksBefore(px, best) {
			best = px
		}
	}
	if best == nil {
		return nil
	}
	selected := *best
	return &selected
}

// ranksBefore orders by score descending, then latency ascending with
// unmeasured latency last, then address.
func ranksBefore(a, b *spider.Proxy) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Latency != b.Latency {
		switch {
		case a.Latency == 0:
			return false
		case b.Latency == 0:
			return true
		default:
			return a.Latency < b.Latency
		}
	}
	return a.Address < b.Address
}

// RecordResult adjusts the score of the pooled proxy with px's address.
// Proxies no longer in the pool are ignored.
func (p *Pool) RecordResult(_ context.Context, px *spider.Proxy, success bool) {
	if px == nil {
		return
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.proxies[px.Address]; ok {
		entry.ApplyResult(success, now)
	}
}

// PeriodicCheck validates every pooled proxy and evicts those that fail.
// It returns the number evicted.
func (p *Pool) PeriodicCheck(ctx context.Context) (int, error) {
	snapshot := p.List()

	var (
		mu     sync.Mutex
		failed []string
	)
	var g errgroup.Group
	g.SetLimit(p.checkWorkers)
	for _, px := range snapshot {
		g.Go(func() error {
			if !p.Validate(ctx, &px) {
				mu.Lock()
				failed = append(failed, px.Address)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Validation failures caused by cancellation say nothing about proxies.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	for _, addr := range failed {
		delete(p.proxies, addr)
	}
	p.mu.Unlock()

	p.logger.Info("proxy check finished", "checked", len(snapshot), "evicted", len(failed))
	return len(failed), nil
}

// Maintain refreshes an empty pool and checks all proxies every interval
// until ctx is done.
func (p *Pool) Maintain(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.Len() == 0 {
			if _, err := p.Refresh(ctx); err != nil {
				p.logger.Warn("proxy refresh", "err", err)
			}
		}
		if _, err := p.PeriodicCheck(ctx); err != nil {
			p.logger.Warn("proxy check", "err", err)
		}
	}
}

// List returns a snapshot of the pool in selection order.
func (p *Pool) List() []spider.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]*spider.Proxy, 0, len(p.proxies))
	for _, px := range p.proxies {
		all = append(all, px)
	}
	sort.Slice(all, func(i, j int) bool { return ranksBefore(all[i], all[j]) })

	out := make([]spider.Proxy, len(all))
	for i, px := range all {
		out[i] = *px
	}
	return out
}

// Len returns the number of pooled proxies.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}
