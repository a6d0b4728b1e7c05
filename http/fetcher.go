// Package http provides the HTTP side of the crawler: a proxy-aware
// spider.Fetcher, the control API server and its RemoteFrontier client.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/yanchengsi/spider"
)

// DefaultFetchTimeout is the default timeout for HTTP requests.
const DefaultFetchTimeout = 10 * time.Second

// DefaultMaxBodySize caps how much of a response body is read.
const DefaultMaxBodySize = 10 << 20

// Ensure Fetcher implements spider.Fetcher at compile time.
var _ spider.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves pages over plain HTTP, optionally through a proxy.
// It keeps one client per proxy so connections to a proxy are reused.
type Fetcher struct {
	timeout     time.Duration
	maxBodySize int64
	direct      *http.Client

	mu      sync.Mutex
	clients map[string]*http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the timeout for HTTP requests.
// Defaults to DefaultFetchTimeout (10s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithMaxBodySize sets how many bytes of a body are read; the rest is dropped.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = n
	}
}

// WithClient replaces the client used for requests without a proxy.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.direct = c
	}
}

// NewFetcher creates a new HTTP-based Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:     DefaultFetchTimeout,
		maxBodySize: DefaultMaxBodySize,
		clients:     make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.direct == nil {
		// A nil proxy never fails.
		f.direct, _ = ClientForProxy(nil, f.timeout)
	}

	return f
}

// Fetch performs a GET for req.URL. Any status code is returned without
// error; an error means no response was received.
func (f *Fetcher) Fetch(ctx context.Context, req *spider.FetchRequest) (*spider.FetchResponse, error) {
	client, err := f.clientFor(req.Proxy)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, spider.Errorf(spider.EINVALID, "build request for %s: %v", req.URL, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", req.URL, err)
	}

	return &spider.FetchResponse{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}

func (f *Fetcher) clientFor(p *spider.Proxy) (*http.Client, error) {
	if p == nil {
		return f.direct, nil
	}

	key := p.URL().String()

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c, nil
	}
	c, err := ClientForProxy(p, f.timeout)
	if err != nil {
		return nil, err
	}
	f.clients[key] = c
	return c, nil
}

// Close drops idle connections held for every proxy.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.direct.CloseIdleConnections()
	for key, c := range f.clients {
		c.CloseIdleConnections()
		delete(f.clients, key)
	}
	return nil
}
