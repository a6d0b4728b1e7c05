package crawl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yanchengsi/spider/crawl"
)

func TestTruncateURL(t *testing.T) {
	t.Parallel()

	const long = "https://news.example.com/2024/05/harbour-reopens"

	tests := []struct {
		name   string
		url    string
		maxLen int
		want   string
	}{
		{"fits", "https://x.com/", 50, "https://x.com/"},
		{"exact length", "https://x.com/", 14, "https://x.com/"},
		{"keeps the tail", long, 20, "...5/harbour-reopens"},
		{"zero", long, 0, ""},
		{"negative", long, -5, ""},
		{"no room for dots", long, 3, "htt"},
		{"short url tiny limit", "ab", 3, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := crawl.TruncateURL(tt.url, tt.maxLen)
			assert.Equal(t, tt.want, got)
			if tt.maxLen >= 0 {
				assert.LessOrEqual(t, len(got), tt.maxLen)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0 B", crawl.FormatBytes(0))
	assert.Equal(t, "1023 B", crawl.FormatBytes(1023))
	assert.Equal(t, "1.0 KB", crawl.FormatBytes(1024))
	assert.Equal(t, "10.0 MB", crawl.FormatBytes(10<<20))
}

func TestComputeHash(t *testing.T) {
	t.Parallel()

	page := "<html><body>same body</body></html>"

	// identical bodies under different URLs share a hash
	assert.Equal(t, crawl.ComputeHash(page), crawl.ComputeHash(page))
	assert.NotEqual(t, crawl.ComputeHash(page), crawl.ComputeHash(page+" "))
	assert.Regexp(t, `^[0-9a-f]{16}$`, crawl.ComputeHash(""))
}
