package spider

import (
	"net"
	"net/url"
	"strings"
)

// URLState is the lifecycle state of a URL in the frontier.
type URLState string

// URL lifecycle states. PENDING -> IN_PROGRESS -> {VISITED, FAILED} is the
// only legal path; terminal states are permanent.
const (
	StatePending    URLState = "pending"
	StateInProgress URLState = "in_progress"
	StateVisited    URLState = "visited"
	StateFailed     URLState = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s URLState) Terminal() bool {
	return s == StateVisited || s == StateFailed
}

// URLRecord is the frontier's record of a single normalized URL.
type URLRecord struct {
	URL      string   `json:"url"`
	State    URLState `json:"state"`
	Depth    int      `json:"depth"`
	Attempts int      `json:"attempts"`
}

// CrawlTask is a unit of work handed out by Frontier.Next.
type CrawlTask struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// NormalizeURL validates rawURL as an absolute http(s) URL and returns its
// canonical form: lowercase scheme and host, no fragment, no default port,
// and "/" for an empty path.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", Errorf(EINVALID, "invalid URL %q: %v", rawURL, err)
	}
	return normalize(u)
}

// ResolveURL resolves href against base and normalizes the result.
func ResolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", Errorf(EINVALID, "invalid base URL %q: %v", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", Errorf(EINVALID, "invalid reference %q: %v", href, err)
	}
	return normalize(b.ResolveReference(ref))
}

// DomainKey returns the "scheme://host" key of rawURL, used to scope
// per-site politeness state.
func DomainKey(rawURL string) (string, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(normalized)
	return u.Scheme + "://" + u.Host, nil
}

func normalize(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", Errorf(EINVALID, "unsupported scheme %q", u.Scheme)
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return "", Errorf(EINVALID, "URL %q has no host", u.String())
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	out := *u
	out.Scheme = scheme
	out.Host = host
	out.Fragment = ""
	out.RawFragment = ""
	if out.Path == "" {
		out.Path = "/"
		out.RawPath = ""
	}
	return out.String(), nil
}
