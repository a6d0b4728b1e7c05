package mock

import (
	"context"

	"github.com/yanchengsi/spider"
)

var _ spider.Frontier = (*Frontier)(nil)

// Frontier is a mock implementation of spider.Frontier.
type Frontier struct {
	AddSeedFn         func(ctx context.Context, urls []string) (int, error)
	NextFn            func(ctx context.Context) (spider.CrawlTask, bool, error)
	AddDiscoveredFn   func(ctx context.Context, urls []string, parentDepth int) (int, error)
	MarkVisitedFn     func(ctx context.Context, url string) error
	MarkFailedFn      func(ctx context.Context, url string) error
	SnapshotVisitedFn func(ctx context.Context) ([]string, error)
	LookupFn          func(ctx context.Context, url string) (*spider.URLRecord, error)
	StatsFn           func(ctx context.Context) (spider.FrontierStats, error)
}

func (f *Frontier) AddSeed(ctx context.Context, urls []string) (int, error) {
	return f.AddSeedFn(ctx, urls)
}

func (f *Frontier) Next(ctx context.Context) (spider.CrawlTask, bool, error) {
	return f.NextFn(ctx)
}

func (f *Frontier) AddDiscovered(ctx context.Context, urls []string, parentDepth int) (int, error) {
	return f.AddDiscoveredFn(ctx, urls, parentDepth)
}

func (f *Frontier) MarkVisited(ctx context.Context, url string) error {
	return f.MarkVisitedFn(ctx, url)
}

func (f *Frontier) MarkFailed(ctx context.Context, url string) error {
	return f.MarkFailedFn(ctx, url)
}

func (f *Frontier) SnapshotVisited(ctx context.Context) ([]string, error) {
	return f.SnapshotVisitedFn(ctx)
}

func (f *Frontier) Lookup(ctx context.Context, url string) (*spider.URLRecord, error) {
	return f.LookupFn(ctx, url)
}

func (f *Frontier) Stats(ctx context.Context) (spider.FrontierStats, error) {
	return f.StatsFn(ctx)
}
