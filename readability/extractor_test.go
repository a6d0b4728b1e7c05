package readability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/readability"
)

const newsHTML = `<!DOCTYPE html>
<html>
<head><title>Harbour Reopens After Storm</title></head>
<body>
<nav><a href="/home">Home Nav Link</a><a href="/about">About Nav Link</a></nav>
<aside class="sidebar"><p>Sidebar navigation content</p></aside>
<article>
<h1>Harbour Reopens</h1>
<p>The harbour reopened on Tuesday after three days of closures caused by the storm surge along the coast.</p>
<p>Port officials said ferry traffic would return to the normal timetable by the end of the week.</p>
<ul><li>Ferries resume</li><li>Cargo delayed</li></ul>
</article>
<footer><p>Footer copyright text 2024</p></footer>
</body>
</html>`

func TestExtractor_Extract(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()

		_, err := readability.NewExtractor().Extract("  ")

		require.Error(t, err)
		assert.Equal(t, spider.EINVALID, spider.ErrorCode(err))
	})

	t.Run("extracts title", func(t *testing.T) {
		t.Parallel()

		result, err := readability.NewExtractor().Extract(newsHTML)

		require.NoError(t, err)
		assert.Equal(t, "Harbour Reopens After Storm", result.Title)
	})

	t.Run("keeps article text", func(t *testing.T) {
		t.Parallel()

		result, err := readability.NewExtractor().Extract(newsHTML)

		require.NoError(t, err)
		assert.Contains(t, result.Text, "harbour reopened on Tuesday")
		assert.Contains(t, result.Text, "normal timetable")
		assert.Contains(t, result.ContentHTML, "<li")
	})

	t.Run("drops boilerplate", func(t *testing.T) {
		t.Parallel()

		result, err := readability.NewExtractor().Extract(newsHTML)

		require.NoError(t, err)
		for _, s := range []string{"Home Nav Link", "Sidebar navigation content", "Footer copyright text"} {
			assert.NotContains(t, result.Text, s)
			assert.NotContains(t, result.ContentHTML, s)
		}
	})
}
