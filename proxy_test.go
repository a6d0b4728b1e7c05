package spider_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yanchengsi/spider"
)

func TestNewProxy(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := spider.NewProxy("10.0.0.1:8080", "", now)

	assert.Equal(t, spider.ProtocolHTTP, p.Protocol)
	assert.Equal(t, spider.InitialProxyScore, p.Score)
	assert.Equal(t, now, p.AddedAt)
	assert.True(t, p.LastCheck.IsZero())
	assert.Equal(t, "http://10.0.0.1:8080", p.URL().String())
}

func TestProxy_ApplyResult(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success is capped at max score", func(t *testing.T) {
		t.Parallel()

		p := spider.NewProxy("10.0.0.1:8080", "", now)
		p.ApplyResult(true, now)

		assert.Equal(t, spider.MaxProxyScore, p.Score)
		assert.Equal(t, now, p.LastCheck)
	})

	t.Run("failure subtracts penalty", func(t *testing.T) {
		t.Parallel()

		p := spider.NewProxy("10.0.0.1:8080", "", now)
		p.ApplyResult(false, now)

		assert.Equal(t, 80, p.Score)
	})

	t.Run("failure is floored at min score", func(t *testing.T) {
		t.Parallel()

		p := spider.NewProxy("10.0.0.1:8080", "", now)
		p.Score = 5
		p.ApplyResult(false, now)

		assert.Equal(t, spider.MinProxyScore, p.Score)
	})

	t.Run("score stays in bounds for any sequence", func(t *testing.T) {
		t.Parallel()

		r := rand.New(rand.NewPCG(1, 2))
		p := spider.NewProxy("10.0.0.1:8080", "", now)
		for i := 0; i < 10000; i++ {
			p.ApplyResult(r.IntN(3) == 0, now)
			assert.GreaterOrEqual(t, p.Score, spider.MinProxyScore)
			assert.LessOrEqual(t, p.Score, spider.MaxProxyScore)
		}
	})
}

func TestFetchResponse_OK(t *testing.T) {
	t.Parallel()

	assert.True(t, (&spider.FetchResponse{StatusCode: 200}).OK())
	assert.True(t, (&spider.FetchResponse{StatusCode: 204}).OK())
	assert.False(t, (&spider.FetchResponse{StatusCode: 301}).OK())
	assert.False(t, (&spider.FetchResponse{StatusCode: 500}).OK())

	var nilResp *spider.FetchResponse
	assert.False(t, nilResp.OK())
}
