package proxypool

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
)

// maxSourceSize caps how much of a proxy listing is scanned.
const maxSourceSize = 4 << 20

// Source is a URL publishing proxy addresses in plain text or HTML.
// Every address found is assumed to speak Protocol.
type Source struct {
	URL      string
	Protocol string
}

var (
	// colonPattern matches "1.2.3.4:8080".
	colonPattern = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+:\d+`)
	// spacedPattern matches listings that put the port in its own column.
	spacedPattern = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+)[\s:]+(\d+)`)
)

// ParseProxies extracts unique "ip:port" addresses from a listing body
// in order of first appearance. Invalid IPs and ports are skipped.
func ParseProxies(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(host, port string) {
		if net.ParseIP(host).To4() == nil {
			return
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return
		}
		addr := net.JoinHostPort(host, strconv.Itoa(n))
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, m := range colonPattern.FindAllString(body, -1) {
		host, port, err := net.SplitHostPort(m)
		if err == nil {
			add(host, port)
		}
	}
	for _, m := range spacedPattern.FindAllStringSubmatch(body, -1) {
		add(m[1], m[2])
	}
	return out
}

// fetchSource downloads one listing, retrying transient failures.
func (p *Pool) fetchSource(ctx context.Context, src Source) ([]string, error) {
	var body string
	err := crawl.Retry(ctx, "proxy source "+src.URL, p.retryDelays, p.logger, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return spider.Errorf(spider.EINVALID, "proxy source %q: %v", src.URL, err)
		}
		resp, err := p.sourceClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("proxy source %s: HTTP %d", src.URL, resp.StatusCode)
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
		if err != nil {
			return err
		}
		body = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ParseProxies(body), nil
}
