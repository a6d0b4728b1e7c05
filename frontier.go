package spider

import "context"

// Frontier is the authoritative, deduplicated record of every URL's crawl
// state. Implementations must be safe for concurrent use, and Next must be
// atomic against the backing store so that no two callers ever receive the
// same URL.
type Frontier interface {
	// AddSeed admits each valid, previously unknown URL as pending at depth 0.
	// Invalid URLs and duplicates are skipped silently.
	// Returns the number of URLs admitted.
	AddSeed(ctx context.Context, urls []string) (int, error)

	// Next atomically moves one pending URL to in-progress and returns it.
	// The bool result is false if no URL is pending.
	Next(ctx context.Context) (CrawlTask, bool, error)

	// AddDiscovered admits each valid URL that is in no state at all as
	// pending at parentDepth+1. Depth limits are not applied here.
	// Returns the number of URLs admitted.
	AddDiscovered(ctx context.Context, urls []string, parentDepth int) (int, error)

	// MarkVisited moves an in-progress URL to visited.
	// It is a no-op for URLs in any other state.
	MarkVisited(ctx context.Context, url string) error

	// MarkFailed moves an in-progress URL to failed.
	// It is a no-op for URLs in any other state.
	MarkFailed(ctx context.Context, url string) error

	// SnapshotVisited returns the visited URLs.
	SnapshotVisited(ctx context.Context) ([]string, error)

	// Lookup returns the record for url.
	// Returns ENOTFOUND if the frontier has never seen the URL.
	Lookup(ctx context.Context, url string) (*URLRecord, error)

	// Stats returns the number of URLs in each state.
	Stats(ctx context.Context) (FrontierStats, error)
}

// FrontierStats counts frontier records by state.
type FrontierStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Visited    int `json:"visited"`
	Failed     int `json:"failed"`
}

// Total returns the number of URLs the frontier knows about.
func (s FrontierStats) Total() int {
	return s.Pending + s.InProgress + s.Visited + s.Failed
}

// NormalizeAll normalizes urls, dropping invalid entries and duplicates
// while keeping first-occurrence order.
func NormalizeAll(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := NormalizeURL(raw)
		if err != nil {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
