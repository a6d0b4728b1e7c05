package goquery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider/goquery"
)

func TestParser_ExtractLinks(t *testing.T) {
	t.Parallel()

	t.Run("resolves relative links in document order", func(t *testing.T) {
		t.Parallel()

		html := `<!DOCTYPE html>
<html>
<body>
<nav>
	<a href="/news/intro">Introduction</a>
	<a href="guide">Guide</a>
</nav>
<a href="https://other.test/page">External</a>
</body>
</html>`

		links, err := goquery.NewParser().ExtractLinks(html, "https://example.com/news/")

		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://example.com/news/intro",
			"https://example.com/news/guide",
			"https://other.test/page",
		}, links)
	})

	t.Run("deduplicates and strips fragments", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
<a href="/a#one">A</a>
<a href="/a#two">A again</a>
<a href="HTTPS://EXAMPLE.com:443/a">A uppercased</a>
</body></html>`

		links, err := goquery.NewParser().ExtractLinks(html, "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/a"}, links)
	})

	t.Run("skips non-http and self links", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
<a href="javascript:void(0)">JS</a>
<a href="mailto:a@example.com">Mail</a>
<a href="tel:+100">Call</a>
<a href="data:text/plain,hi">Data</a>
<a href="ftp://example.com/file">FTP</a>
<a href="#top">Top</a>
<a href="">Empty</a>
<a href="/ok">OK</a>
</body></html>`

		links, err := goquery.NewParser().ExtractLinks(html, "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/ok"}, links)
	})

	t.Run("same host option filters external links", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
<a href="https://example.com/in">In</a>
<a href="https://sub.example.com/out">Subdomain</a>
<a href="https://other.test/out">Other</a>
</body></html>`

		links, err := goquery.NewParser(goquery.WithSameHostOnly()).ExtractLinks(html, "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/in"}, links)
	})

	t.Run("rejects invalid base URL", func(t *testing.T) {
		t.Parallel()

		_, err := goquery.NewParser().ExtractLinks("<html></html>", "not a url")
		require.Error(t, err)
	})

	t.Run("page without links returns empty slice", func(t *testing.T) {
		t.Parallel()

		links, err := goquery.NewParser().ExtractLinks("<html><body><p>x</p></body></html>", "https://example.com/")
		require.NoError(t, err)
		assert.Empty(t, links)
	})
}
