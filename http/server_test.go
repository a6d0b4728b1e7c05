package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
	spiderhttp "github.com/yanchengsi/spider/http"
	"github.com/yanchengsi/spider/mock"
)

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestServer_task_lifecycle(t *testing.T) {
	t.Parallel()

	frontier := crawl.NewFrontier()
	server := spiderhttp.NewServer(frontier)

	rr := serve(t, server, http.MethodGet, "/task", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"task": null}`, rr.Body.String())

	rr = serve(t, server, http.MethodPost, "/seed", `{"urls": ["http://a.test", "http://a.test/", "bogus"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[spiderhttp.AddedResponse](t, rr).Added)

	rr = serve(t, server, http.MethodGet, "/task", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"task": {"url": "http://a.test/", "depth": 0}}`, rr.Body.String())

	rr = serve(t, server, http.MethodPost, "/discovered", `{"urls": ["http://a.test/1"], "parent_depth": 0}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[spiderhttp.AddedResponse](t, rr).Added)

	rr = serve(t, server, http.MethodPost, "/status", `{"url": "http://a.test/", "status": "success"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, server, http.MethodGet, "/visited", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"http://a.test/"}, decodeBody[spiderhttp.VisitedResponse](t, rr).URLs)

	rr = serve(t, server, http.MethodGet, "/urls?url=http://a.test/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, spider.URLRecord{URL: "http://a.test/1", State: spider.StatePending, Depth: 1}, decodeBody[spider.URLRecord](t, rr))

	rr = serve(t, server, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, spider.FrontierStats{Pending: 1, Visited: 1}, decodeBody[spider.FrontierStats](t, rr))
}

func TestServer_status_failed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	frontier := crawl.NewFrontier()
	_, err := frontier.AddSeed(ctx, []string{"http://a.test/"})
	require.NoError(t, err)
	_, _, err = frontier.Next(ctx)
	require.NoError(t, err)

	server := spiderhttp.NewServer(frontier)
	rr := serve(t, server, http.MethodPost, "/status", `{"url": "http://a.test/", "status": "failed"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rec, err := frontier.Lookup(ctx, "http://a.test/")
	require.NoError(t, err)
	assert.Equal(t, spider.StateFailed, rec.State)
}

func TestServer_errors(t *testing.T) {
	t.Parallel()

	server := spiderhttp.NewServer(crawl.NewFrontier())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/status", `{`, http.StatusBadRequest, spider.EINVALID},
		{"unknown status", http.MethodPost, "/status", `{"url": "http://a.test/", "status": "maybe"}`, http.StatusBadRequest, spider.EINVALID},
		{"invalid status url", http.MethodPost, "/status", `{"url": "nope", "status": "success"}`, http.StatusBadRequest, spider.EINVALID},
		{"negative parent depth", http.MethodPost, "/discovered", `{"urls": [], "parent_depth": -1}`, http.StatusBadRequest, spider.EINVALID},
		{"lookup without url", http.MethodGet, "/urls", "", http.StatusBadRequest, spider.EINVALID},
		{"lookup unknown url", http.MethodGet, "/urls?url=http://missing.test/", "", http.StatusNotFound, spider.ENOTFOUND},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := serve(t, server, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decodeBody[spiderhttp.ErrorResponse](t, rr).Code)
		})
	}
}

func TestServer_maps_error_codes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
	}{
		{spider.Errorf(spider.ECONFLICT, "busy"), http.StatusConflict},
		{spider.Errorf(spider.EUNAVAILABLE, "down"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()

			frontier := &mock.Frontier{
				StatsFn: func(ctx context.Context) (spider.FrontierStats, error) {
					return spider.FrontierStats{}, tt.err
				},
			}
			rr := serve(t, spiderhttp.NewServer(frontier), http.MethodGet, "/stats", "")
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestServer_health(t *testing.T) {
	t.Parallel()

	rr := serve(t, spiderhttp.NewServer(crawl.NewFrontier()), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestServer_rejects_wrong_method(t *testing.T) {
	t.Parallel()

	rr := serve(t, spiderhttp.NewServer(crawl.NewFrontier()), http.MethodPost, "/task", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_Serve_stops_on_cancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- spiderhttp.NewServer(crawl.NewFrontier()).Serve(ctx, ln)
	}()

	client := spiderhttp.NewRemoteFrontier("http://" + ln.Addr().String())
	require.Eventually(t, func() bool {
		return client.Ping(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
