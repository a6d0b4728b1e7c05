package crawl

import (
	"container/heap"
	"context"
	"sort"
	"sync"

	"github.com/yanchengsi/spider"
)

// Compile-time interface verification.
var _ spider.Frontier = (*Frontier)(nil)

// Frontier is an in-memory URL frontier. Pending URLs are dispatched
// shallowest first, then in admission order.
// It is safe for concurrent use by multiple goroutines.
type Frontier struct {
	mu      sync.Mutex
	records map[string]*spider.URLRecord
	queue   *taskHeap
	seq     uint64
}

// NewFrontier creates an empty Frontier.
func NewFrontier() *Frontier {
	h := &taskHeap{}
	heap.Init(h)
	return &Frontier{
		records: make(map[string]*spider.URLRecord),
		queue:   h,
	}
}

// AddSeed admits urls at depth 0.
func (f *Frontier) AddSeed(_ context.Context, urls []string) (int, error) {
	return f.admit(urls, 0), nil
}

// AddDiscovered admits urls at parentDepth+1.
func (f *Frontier) AddDiscovered(_ context.Context, urls []string, parentDepth int) (int, error) {
	return f.admit(urls, parentDepth+1), nil
}

func (f *Frontier) admit(urls []string, depth int) int {
	normalized := spider.NormalizeAll(urls)

	f.mu.Lock()
	defer f.mu.Unlock()

	var n int
	for _, u := range normalized {
		if _, ok := f.records[u]; ok {
			continue
		}
		f.records[u] = &spider.URLRecord{URL: u, State: spider.StatePending, Depth: depth}
		f.seq++
		heap.Push(f.queue, queuedTask{url: u, depth: depth, seq: f.seq})
		n++
	}
	return n
}

// Next pops the next pending URL and moves it to IN_PROGRESS.
func (f *Frontier) Next(_ context.Context) (spider.CrawlTask, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.queue.Len() > 0 {
		item, _ := heap.Pop(f.queue).(queuedTask)
		rec := f.records[item.url]
		if rec == nil || rec.State != spider.StatePending {
			continue
		}
		rec.State = spider.StateInProgress
		rec.Attempts++
		return spider.CrawlTask{URL: rec.URL, Depth: rec.Depth}, true, nil
	}
	return spider.CrawlTask{}, false, nil
}

// MarkVisited moves an IN_PROGRESS url to VISITED.
func (f *Frontier) MarkVisited(_ context.Context, url string) error {
	f.finish(url, spider.StateVisited)
	return nil
}

// MarkFailed moves an IN_PROGRESS url to FAILED.
func (f *Frontier) MarkFailed(_ context.Context, url string) error {
	f.finish(url, spider.StateFailed)
	return nil
}

func (f *Frontier) finish(rawURL string, state spider.URLState) {
	u, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if rec, ok := f.records[u]; ok && rec.State == spider.StateInProgress {
		rec.State = state
	}
}

// SnapshotVisited returns the visited URLs in lexical order.
func (f *Frontier) SnapshotVisited(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	visited := make([]string, 0)
	for u, rec := range f.records {
		if rec.State == spider.StateVisited {
			visited = append(visited, u)
		}
	}
	sort.Strings(visited)
	return visited, nil
}

// Lookup returns a copy of the record for url.
func (f *Frontier) Lookup(_ context.Context, rawURL string) (*spider.URLRecord, error) {
	u, err := spider.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[u]
	if !ok {
		return nil, spider.Errorf(spider.ENOTFOUND, "url %q not in frontier", u)
	}
	other := *rec
	return &other, nil
}

// Stats counts records by state.
func (f *Frontier) Stats(_ context.Context) (spider.FrontierStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s spider.FrontierStats
	for _, rec := range f.records {
		switch rec.State {
		case spider.StatePending:
			s.Pending++
		case spider.StateInProgress:
			s.InProgress++
		case spider.StateVisited:
			s.Visited++
		case spider.StateFailed:
			s.Failed++
		}
	}
	return s, nil
}

type queuedTask struct {
	url   string
	depth int
	seq   uint64
}

// taskHeap implements heap.Interface ordered by (depth, seq).
type taskHeap []queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	t, _ := x.(queuedTask)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
