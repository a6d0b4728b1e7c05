package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/bloom"
)

var _ spider.Frontier = (*Frontier)(nil)

// admitScript adds every unknown URL in ARGV[2:] as pending at depth ARGV[1].
// The pending score is depth*1e9 + admission sequence, so URLs at one depth
// keep admission order.
// KEYS: depth hash, pending zset, sequence counter.
var admitScript = redis.NewScript(`
local depth = tonumber(ARGV[1])
local added = 0
for i = 2, #ARGV do
  local u = ARGV[i]
  if redis.call('HSETNX', KEYS[1], u, depth) == 1 then
    local seq = redis.call('INCR', KEYS[3])
    redis.call('ZADD', KEYS[2], depth * 1000000000 + seq, u)
    added = added + 1
  end
end
return added
`)

// nextScript moves the lowest scored pending URL to in-progress.
// KEYS: pending zset, in-progress set, attempts hash, depth hash.
var nextScript = redis.NewScript(`
local items = redis.call('ZRANGE', KEYS[1], 0, 0)
if #items == 0 then
  return false
end
local u = items[1]
redis.call('ZREM', KEYS[1], u)
redis.call('SADD', KEYS[2], u)
redis.call('HINCRBY', KEYS[3], u, 1)
return {u, redis.call('HGET', KEYS[4], u)}
`)

// markScript moves ARGV[1] from in-progress to the terminal set.
// KEYS: in-progress set, terminal set.
var markScript = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('SADD', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// Frontier is a spider.Frontier shared by every worker connected to the
// same Redis. Admission, dispatch and marking each run as one Lua script,
// so dispatch is at most once across processes.
type Frontier struct {
	rdb    *redis.Client
	prefix string
	seen   *bloom.Filter
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) FrontierOption {
	return func(f *Frontier) { f.prefix = prefix }
}

// WithSeenFilter skips URLs this worker already submitted before they
// reach Redis. A false positive drops a new URL; duplicates are never
// admitted either way.
func WithSeenFilter(filter *bloom.Filter) FrontierOption {
	return func(f *Frontier) { f.seen = filter }
}

// NewFrontier creates a Frontier on an opened Client.
func NewFrontier(c *Client, opts ...FrontierOption) *Frontier {
	f := &Frontier{rdb: c.rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Frontier) key(name string) string {
	return f.prefix + ":" + name
}

// AddSeed admits urls at depth 0.
func (f *Frontier) AddSeed(ctx context.Context, urls []string) (int, error) {
	return f.admit(ctx, urls, 0)
}

// AddDiscovered admits urls at parentDepth+1.
func (f *Frontier) AddDiscovered(ctx context.Context, urls []string, parentDepth int) (int, error) {
	return f.admit(ctx, urls, parentDepth+1)
}

func (f *Frontier) admit(ctx context.Context, urls []string, depth int) (int, error) {
	normalized := spider.NormalizeAll(urls)
	if f.seen != nil {
		fresh := normalized[:0]
		for _, u := range normalized {
			if !f.seen.Test(u) {
				fresh = append(fresh, u)
			}
		}
		normalized = fresh
	}
	if len(normalized) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(normalized)+1)
	args = append(args, depth)
	for _, u := range normalized {
		args = append(args, u)
	}

	n, err := admitScript.Run(ctx, f.rdb,
		[]string{f.key("depth"), f.key("pending"), f.key("seq")}, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("admit urls: %w", err)
	}
	// Only URLs Redis has accepted are remembered, so a failed call can be
	// retried.
	if f.seen != nil {
		for _, u := range normalized {
			f.seen.Add(u)
		}
	}
	return n, nil
}

// Next atomically pops the shallowest pending URL.
func (f *Frontier) Next(ctx context.Context) (spider.CrawlTask, bool, error) {
	res, err := nextScript.Run(ctx, f.rdb,
		[]string{f.key("pending"), f.key("in_progress"), f.key("attempts"), f.key("depth")}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return spider.CrawlTask{}, false, nil
	}
	if err != nil {
		return spider.CrawlTask{}, false, fmt.Errorf("next task: %w", err)
	}
	if len(res) != 2 {
		return spider.CrawlTask{}, false, fmt.Errorf("next task: unexpected reply %v", res)
	}

	depth, err := strconv.Atoi(res[1])
	if err != nil {
		return spider.CrawlTask{}, false, fmt.Errorf("next task: depth of %s: %w", res[0], err)
	}
	return spider.CrawlTask{URL: res[0], Depth: depth}, true, nil
}

// MarkVisited moves an in-progress url to visited.
func (f *Frontier) MarkVisited(ctx context.Context, url string) error {
	return f.mark(ctx, url, "visited")
}

// MarkFailed moves an in-progress url to failed.
func (f *Frontier) MarkFailed(ctx context.Context, url string) error {
	return f.mark(ctx, url, "failed")
}

func (f *Frontier) mark(ctx context.Context, rawURL, set string) error {
	u, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return nil
	}
	if err := markScript.Run(ctx, f.rdb, []string{f.key("in_progress"), f.key(set)}, u).Err(); err != nil {
		return fmt.Errorf("mark %s %s: %w", set, u, err)
	}
	return nil
}

// SnapshotVisited returns the visited URLs in lexical order.
func (f *Frontier) SnapshotVisited(ctx context.Context) ([]string, error) {
	urls, err := f.rdb.SMembers(ctx, f.key("visited")).Result()
	if err != nil {
		return nil, fmt.Errorf("visited urls: %w", err)
	}
	sort.Strings(urls)
	return urls, nil
}

// Lookup returns the record for url.
func (f *Frontier) Lookup(ctx context.Context, rawURL string) (*spider.URLRecord, error) {
	u, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	var (
		depth      *redis.StringCmd
		attempts   *redis.StringCmd
		pending    *redis.FloatCmd
		inProgress *redis.BoolCmd
		visited    *redis.BoolCmd
	)
	_, err = f.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		depth = pipe.HGet(ctx, f.key("depth"), u)
		attempts = pipe.HGet(ctx, f.key("attempts"), u)
		pending = pipe.ZScore(ctx, f.key("pending"), u)
		inProgress = pipe.SIsMember(ctx, f.key("in_progress"), u)
		visited = pipe.SIsMember(ctx, f.key("visited"), u)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("lookup %s: %w", u, err)
	}

	d, err := depth.Int()
	if errors.Is(err, redis.Nil) {
		return nil, spider.Errorf(spider.ENOTFOUND, "url %q not in frontier", u)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", u, err)
	}
	rec := &spider.URLRecord{URL: u, Depth: d, State: spider.StateFailed}
	rec.Attempts, _ = attempts.Int()

	switch {
	case pending.Err() == nil:
		rec.State = spider.StatePending
	case inProgress.Val():
		rec.State = spider.StateInProgress
	case visited.Val():
		rec.State = spider.StateVisited
	}
	return rec, nil
}

// Stats counts URLs by state.
func (f *Frontier) Stats(ctx context.Context) (spider.FrontierStats, error) {
	var pending, inProgress, visited, failed *redis.IntCmd
	_, err := f.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.ZCard(ctx, f.key("pending"))
		inProgress = pipe.SCard(ctx, f.key("in_progress"))
		visited = pipe.SCard(ctx, f.key("visited"))
		failed = pipe.SCard(ctx, f.key("failed"))
		return nil
	})
	if err != nil {
		return spider.FrontierStats{}, fmt.Errorf("frontier stats: %w", err)
	}
	return spider.FrontierStats{
		Pending:    int(pending.Val()),
		InProgress: int(inProgress.Val()),
		Visited:    int(visited.Val()),
		Failed:     int(failed.Val()),
	}, nil
}
