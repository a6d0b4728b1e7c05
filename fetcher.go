package spider

import "context"

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	URL     string
	Proxy   *Proxy // nil fetches directly
	Headers map[string]string
}

// FetchResponse is the raw result of a fetch.
type FetchResponse struct {
	StatusCode int
	Body       string
}

// OK reports whether the response has a 2xx status.
func (r *FetchResponse) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher retrieves pages over the network.
type Fetcher interface {
	// Fetch performs the request. Responses with any status code are
	// returned without error; err is reserved for transport failures.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResponse, error)

	// Close releases resources held by the fetcher.
	Close() error
}
