package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yanchengsi/spider"
)

// Ensure RemoteFrontier implements spider.Frontier at compile time.
var _ spider.Frontier = (*RemoteFrontier)(nil)

// RemoteFrontier is a spider.Frontier backed by a control API Server.
type RemoteFrontier struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures a RemoteFrontier.
type ClientOption func(*RemoteFrontier)

// WithHTTPClient sets the client used to reach the server.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(f *RemoteFrontier) {
		f.client = c
	}
}

// NewRemoteFrontier creates a RemoteFrontier for the server at baseURL,
// e.g. "http://127.0.0.1:5000".
func NewRemoteFrontier(baseURL string, opts ...ClientOption) *RemoteFrontier {
	f := &RemoteFrontier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultFetchTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ping checks that the server is healthy.
func (f *RemoteFrontier) Ping(ctx context.Context) error {
	return f.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (f *RemoteFrontier) AddSeed(ctx context.Context, urls []string) (int, error) {
	var resp AddedResponse
	if err := f.do(ctx, http.MethodPost, "/seed", SeedRequest{URLs: urls}, &resp); err != nil {
		return 0, err
	}
	return resp.Added, nil
}

func (f *RemoteFrontier) AddDiscovered(ctx context.Context, urls []string, parentDepth int) (int, error) {
	var resp AddedResponse
	req := DiscoveredRequest{URLs: urls, ParentDepth: parentDepth}
	if err := f.do(ctx, http.MethodPost, "/discovered", req, &resp); err != nil {
		return 0, err
	}
	return resp.Added, nil
}

func (f *RemoteFrontier) Next(ctx context.Context) (spider.CrawlTask, bool, error) {
	var resp TaskResponse
	if err := f.do(ctx, http.MethodGet, "/task", nil, &resp); err != nil {
		return spider.CrawlTask{}, false, err
	}
	if resp.Task == nil {
		return spider.CrawlTask{}, false, nil
	}
	return *resp.Task, true, nil
}

func (f *RemoteFrontier) MarkVisited(ctx context.Context, url string) error {
	return f.do(ctx, http.MethodPost, "/status", StatusRequest{URL: url, Status: StatusSuccess}, nil)
}

func (f *RemoteFrontier) MarkFailed(ctx context.Context, url string) error {
	return f.do(ctx, http.MethodPost, "/status", StatusRequest{URL: url, Status: StatusFailed}, nil)
}

func (f *RemoteFrontier) SnapshotVisited(ctx context.Context) ([]string, error) {
	var resp VisitedResponse
	if err := f.do(ctx, http.MethodGet, "/visited", nil, &resp); err != nil {
		return nil, err
	}
	return resp.URLs, nil
}

func (f *RemoteFrontier) Lookup(ctx context.Context, rawURL string) (*spider.URLRecord, error) {
	var rec spider.URLRecord
	path := "/urls?" + url.Values{"url": {rawURL}}.Encode()
	if err := f.do(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (f *RemoteFrontier) Stats(ctx context.Context) (spider.FrontierStats, error) {
	var stats spider.FrontierStats
	if err := f.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return spider.FrontierStats{}, err
	}
	return stats, nil
}

// do sends body as JSON and decodes the response into out. Error
// responses are turned back into *spider.Error with the server's code.
func (f *RemoteFrontier) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, r)
	if err != nil {
		return spider.Errorf(spider.EINVALID, "build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return spider.Errorf(spider.EUNAVAILABLE, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return &spider.Error{Code: e.Code, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
