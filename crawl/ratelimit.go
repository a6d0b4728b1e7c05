package crawl

import (
	"context"
	"sync"

	"github.com/yanchengsi/spider"
	"golang.org/x/time/rate"
)

var _ spider.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter applies a token bucket per domain key on top of the
// robots.txt crawl delay. Requests to different domains never wait on
// each other.
type DomainLimiter struct {
	limit rate.Limit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewDomainLimiter allows rps requests per second per domain with a burst
// of 1. A non-positive rps disables limiting.
func NewDomainLimiter(rps float64) *DomainLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &DomainLimiter{limit: limit, buckets: map[string]*rate.Limiter{}}
}

// Wait blocks until the domain's bucket has a token or ctx is done.
func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return d.bucket(domain).Wait(ctx)
}

func (d *DomainLimiter) bucket(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[domain]
	if !ok {
		b = rate.NewLimiter(d.limit, 1)
		d.buckets[domain] = b
	}
	return b
}
