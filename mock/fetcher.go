package mock

import (
	"context"

	"github.com/yanchengsi/spider"
)

var _ spider.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of spider.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, req *spider.FetchRequest) (*spider.FetchResponse, error)
	CloseFn func() error
}

func (f *Fetcher) Fetch(ctx context.Context, req *spider.FetchRequest) (*spider.FetchResponse, error) {
	return f.FetchFn(ctx, req)
}

func (f *Fetcher) Close() error {
	return f.CloseFn()
}
