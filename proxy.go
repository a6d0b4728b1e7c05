package spider

import (
	"context"
	"net/url"
	"time"
)

// Proxy scoring bounds and adjustments.
const (
	MinProxyScore     = 0
	MaxProxyScore     = 100
	InitialProxyScore = 100

	// A failure costs twice what a success earns, so the pool is quick to
	// distrust a failing proxy and slow to fully trust it again.
	ProxySuccessReward  = 10
	ProxyFailurePenalty = 20
)

// Proxy protocols.
const (
	ProtocolHTTP   = "http"
	ProtocolHTTPS  = "https"
	ProtocolSOCKS5 = "socks5"
)

// Proxy is an outbound proxy endpoint with its reputation.
type Proxy struct {
	Address   string        `json:"address"` // host:port
	Protocol  string        `json:"protocol"`
	Score     int           `json:"score"`
	LastCheck time.Time     `json:"lastCheck"`
	Latency   time.Duration `json:"latency"` // zero until measured
	AddedAt   time.Time     `json:"addedAt"`
}

// NewProxy returns a proxy with the initial score.
// An empty protocol defaults to http.
func NewProxy(address, protocol string, now time.Time) *Proxy {
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	return &Proxy{
		Address:  address,
		Protocol: protocol,
		Score:    InitialProxyScore,
		AddedAt:  now,
	}
}

// URL returns the proxy as a URL, e.g. socks5://1.2.3.4:1080.
func (p *Proxy) URL() *url.URL {
	return &url.URL{Scheme: p.Protocol, Host: p.Address}
}

// ApplyResult adjusts the score for a fetch outcome, clamped to
// [MinProxyScore, MaxProxyScore], and records now as the last check.
func (p *Proxy) ApplyResult(success bool, now time.Time) {
	if success {
		p.Score = min(MaxProxyScore, p.Score+ProxySuccessReward)
	} else {
		p.Score = max(MinProxyScore, p.Score-ProxyFailurePenalty)
	}
	p.LastCheck = now
}

// ProxyPool maintains a scored set of outbound proxies.
type ProxyPool interface {
	// Refresh pulls proxy listings from the configured sources and admits
	// new proxies up to the pool capacity. Returns the number admitted.
	Refresh(ctx context.Context) (int, error)

	// Validate issues a timeboxed test request through p and records its
	// latency. Returns true if the proxy answered successfully.
	Validate(ctx context.Context, p *Proxy) bool

	// Select returns the best eligible proxy, refreshing first if the pool
	// is empty. Returns nil if no proxy is eligible; callers then fetch
	// without a proxy.
	Select(ctx context.Context) *Proxy

	// RecordResult updates the proxy's score from a fetch outcome.
	RecordResult(ctx context.Context, p *Proxy, success bool)

	// PeriodicCheck validates every proxy and evicts the ones that fail.
	// Returns the number evicted.
	PeriodicCheck(ctx context.Context) (int, error)
}
