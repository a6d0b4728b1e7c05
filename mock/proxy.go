package mock

import (
	"context"

	"github.com/yanchengsi/spider"
)

var _ spider.ProxyPool = (*ProxyPool)(nil)

// ProxyPool is a mock implementation of spider.ProxyPool.
type ProxyPool struct {
	RefreshFn       func(ctx context.Context) (int, error)
	ValidateFn      func(ctx context.Context, p *spider.Proxy) bool
	SelectFn        func(ctx context.Context) *spider.Proxy
	RecordResultFn  func(ctx context.Context, p *spider.Proxy, success bool)
	PeriodicCheckFn func(ctx context.Context) (int, error)
}

func (m *ProxyPool) Refresh(ctx context.Context) (int, error) {
	return m.RefreshFn(ctx)
}

func (m *ProxyPool) Validate(ctx context.Context, p *spider.Proxy) bool {
	return m.ValidateFn(ctx, p)
}

func (m *ProxyPool) Select(ctx context.Context) *spider.Proxy {
	return m.SelectFn(ctx)
}

func (m *ProxyPool) RecordResult(ctx context.Context, p *spider.Proxy, success bool) {
	m.RecordResultFn(ctx, p, success)
}

func (m *ProxyPool) PeriodicCheck(ctx context.Context) (int, error) {
	return m.PeriodicCheckFn(ctx)
}
