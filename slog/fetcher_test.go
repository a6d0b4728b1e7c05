package slog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/mock"
	spiderslog "github.com/yanchengsi/spider/slog"
)

func TestLoggingFetcher_Fetch(t *testing.T) {
	t.Parallel()

	viaProxy := &spider.Proxy{Address: "10.0.0.1:8080", Protocol: spider.ProtocolHTTP}

	tests := []struct {
		name    string
		proxy   *spider.Proxy
		resp    *spider.FetchResponse
		err     error
		want    []string
		notWant []string
	}{
		{
			name: "direct success",
			resp: &spider.FetchResponse{StatusCode: 200, Body: "<html>content</html>"},
			want: []string{"msg=fetch", "url=https://example.com/news", "proxy=direct", "status=200", "bytes=20", "duration="},
		},
		{
			name:  "through proxy",
			proxy: viaProxy,
			resp:  &spider.FetchResponse{StatusCode: 404},
			want:  []string{"proxy=10.0.0.1:8080", "status=404"},
		},
		{
			name:    "transport failure",
			proxy:   viaProxy,
			err:     errors.New("network error"),
			want:    []string{"msg=fetch", `err="network error"`, "proxy=10.0.0.1:8080"},
			notWant: []string{"status="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			inner := &mock.Fetcher{
				FetchFn: func(ctx context.Context, req *spider.FetchRequest) (*spider.FetchResponse, error) {
					assert.Same(t, tt.proxy, req.Proxy)
					return tt.resp, tt.err
				},
			}
			fetcher := spiderslog.NewLoggingFetcher(inner, slog.New(slog.NewTextHandler(&buf, nil)))

			resp, err := fetcher.Fetch(context.Background(), &spider.FetchRequest{
				URL:   "https://example.com/news",
				Proxy: tt.proxy,
			})

			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
				assert.Same(t, tt.resp, resp)
			}
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestLoggingFetcher_Close(t *testing.T) {
	t.Parallel()

	closeErr := errors.New("already closed")
	fetcher := spiderslog.NewLoggingFetcher(&mock.Fetcher{
		CloseFn: func() error { return closeErr },
	}, slog.New(slog.DiscardHandler))

	assert.ErrorIs(t, fetcher.Close(), closeErr)
}
