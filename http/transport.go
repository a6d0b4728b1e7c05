package http

import (
	"net"
	"net/http"
	"time"

	"github.com/yanchengsi/spider"
	"golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains followed by proxied and direct clients.
const maxRedirects = 10

// ClientForProxy returns a client whose connections are routed through p.
// HTTP(S) proxies are set on the transport; SOCKS5 proxies replace its
// dialer. A nil p yields a direct client that ignores proxy environment
// variables.
func ClientForProxy(p *spider.Proxy, timeout time.Duration) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: timeout,
	}

	if p != nil {
		switch p.Protocol {
		case spider.ProtocolHTTP, spider.ProtocolHTTPS:
			transport.Proxy = http.ProxyURL(p.URL())
		case spider.ProtocolSOCKS5:
			socks, err := proxy.SOCKS5("tcp", p.Address, nil, dialer)
			if err != nil {
				return nil, spider.Errorf(spider.EINVALID, "socks5 proxy %s: %v", p.Address, err)
			}
			contextDialer, ok := socks.(proxy.ContextDialer)
			if !ok {
				return nil, spider.Errorf(spider.EINTERNAL, "socks5 dialer for %s does not support contexts", p.Address)
			}
			transport.DialContext = contextDialer.DialContext
		default:
			return nil, spider.Errorf(spider.EINVALID, "unsupported proxy protocol %q", p.Protocol)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}
