// Package readability extracts the main content of a page with
// go-readability, as an alternative to the trafilatura extractor.
package readability

import (
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/yanchengsi/spider"
)

var _ spider.Extractor = (*Extractor)(nil)

// Extractor applies the Readability heuristics to a page. It keeps no
// state between calls.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract returns the article title, its plain text and the HTML of the
// content node.
func (*Extractor) Extract(page string) (*spider.ExtractResult, error) {
	if strings.TrimSpace(page) == "" {
		return nil, spider.Errorf(spider.EINVALID, "no page content")
	}

	// No page URL is passed, so relative links in the content stay relative.
	article, err := readability.FromReader(strings.NewReader(page), nil)
	if err != nil {
		return nil, spider.Errorf(spider.EINVALID, "readability: %v", err)
	}

	return &spider.ExtractResult{
		Title:       article.Title,
		Text:        strings.TrimSpace(article.TextContent),
		ContentHTML: article.Content,
	}, nil
}
