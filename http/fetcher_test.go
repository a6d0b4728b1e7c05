package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	spiderhttp "github.com/yanchengsi/spider/http"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("returns HTML body and status from server", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>Hello World</body></html>"))
		}))
		defer server.Close()

		fetcher := spiderhttp.NewFetcher()
		defer fetcher.Close()

		resp, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "<html><body>Hello World</body></html>", resp.Body)
	})

	t.Run("sends request headers", func(t *testing.T) {
		t.Parallel()

		var gotUA, gotLang string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotLang = r.Header.Get("Accept-Language")
		}))
		defer server.Close()

		fetcher := spiderhttp.NewFetcher()
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{
			URL:     server.URL,
			Headers: map[string]string{"User-Agent": "spider-test", "Accept-Language": "en-US"},
		})
		require.NoError(t, err)
		assert.Equal(t, "spider-test", gotUA)
		assert.Equal(t, "en-US", gotLang)
	})

	t.Run("returns non-2xx responses without error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("404 Not Found"))
		}))
		defer server.Close()

		fetcher := spiderhttp.NewFetcher()
		defer fetcher.Close()

		resp, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.False(t, resp.OK())
	})

	t.Run("caps body at max size", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
		}))
		defer server.Close()

		fetcher := spiderhttp.NewFetcher(spiderhttp.WithMaxBodySize(100))
		defer fetcher.Close()

		resp, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: server.URL})
		require.NoError(t, err)
		assert.Len(t, resp.Body, 100)
	})

	t.Run("respects custom timeout option", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte("response"))
		}))
		defer server.Close()

		fetcher := spiderhttp.NewFetcher(spiderhttp.WithTimeout(10 * time.Millisecond))
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: server.URL})
		require.Error(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte("response"))
		}))
		defer server.Close()

		fetcher := spiderhttp.NewFetcher()
		defer fetcher.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := fetcher.Fetch(ctx, &spider.FetchRequest{URL: server.URL})
		require.Error(t, err)
	})

	t.Run("returns error for non-existent host", func(t *testing.T) {
		t.Parallel()

		fetcher := spiderhttp.NewFetcher(spiderhttp.WithTimeout(100 * time.Millisecond))
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: "http://non-existent-host.invalid/page"})
		require.Error(t, err)
	})

	t.Run("routes request through HTTP proxy", func(t *testing.T) {
		t.Parallel()

		var proxiedURL string
		proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proxiedURL = r.URL.String()
			_, _ = w.Write([]byte("via proxy"))
		}))
		defer proxyServer.Close()

		fetcher := spiderhttp.NewFetcher()
		defer fetcher.Close()

		p := spider.NewProxy(strings.TrimPrefix(proxyServer.URL, "http://"), spider.ProtocolHTTP, time.Now())
		resp, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{
			URL:   "http://target.test/page",
			Proxy: p,
		})
		require.NoError(t, err)
		assert.Equal(t, "via proxy", resp.Body)
		assert.Equal(t, "http://target.test/page", proxiedURL)
	})

	t.Run("rejects unsupported proxy protocol", func(t *testing.T) {
		t.Parallel()

		fetcher := spiderhttp.NewFetcher()
		defer fetcher.Close()

		p := spider.NewProxy("10.0.0.1:8080", "gopher", time.Now())
		_, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: "http://a.test/", Proxy: p})
		assert.Equal(t, spider.EINVALID, spider.ErrorCode(err))
	})

	t.Run("uses client supplied with option", func(t *testing.T) {
		t.Parallel()

		var called bool
		client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			called = true
			return httptest.NewRecorder().Result(), nil
		})}

		fetcher := spiderhttp.NewFetcher(spiderhttp.WithClient(client))
		defer fetcher.Close()

		resp, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{URL: "http://a.test/"})
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClientForProxy(t *testing.T) {
	t.Parallel()

	t.Run("builds socks5 client", func(t *testing.T) {
		t.Parallel()

		p := spider.NewProxy("127.0.0.1:1080", spider.ProtocolSOCKS5, time.Now())
		client, err := spiderhttp.ClientForProxy(p, time.Second)
		require.NoError(t, err)

		transport, ok := client.Transport.(*http.Transport)
		require.True(t, ok)
		assert.Nil(t, transport.Proxy)
		assert.NotNil(t, transport.DialContext)
	})

	t.Run("builds http proxy client", func(t *testing.T) {
		t.Parallel()

		p := spider.NewProxy("127.0.0.1:3128", spider.ProtocolHTTP, time.Now())
		client, err := spiderhttp.ClientForProxy(p, time.Second)
		require.NoError(t, err)

		transport, ok := client.Transport.(*http.Transport)
		require.True(t, ok)
		require.NotNil(t, transport.Proxy)

		req := httptest.NewRequest(http.MethodGet, "http://a.test/", nil)
		u, err := transport.Proxy(req)
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:3128", u.String())
	})

	t.Run("direct client has no proxy", func(t *testing.T) {
		t.Parallel()

		client, err := spiderhttp.ClientForProxy(nil, time.Second)
		require.NoError(t, err)
		assert.Equal(t, time.Second, client.Timeout)
	})
}
