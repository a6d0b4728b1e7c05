// Package htmltomarkdown renders record bodies as Markdown using
// github.com/JohannesKaufmann/html-to-markdown.
package htmltomarkdown

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/yanchengsi/spider"
)

var _ spider.Converter = (*Converter)(nil)

// Converter turns the extracted content HTML of a page into CommonMark
// with GitHub-style tables.
type Converter struct {
	md *converter.Converter
}

// NewConverter returns a Converter. It is safe for concurrent use.
func NewConverter() *Converter {
	plugins := converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	)
	return &Converter{md: converter.NewConverter(plugins)}
}

// Convert returns the Markdown for html, trimmed of surrounding blank lines.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", spider.Errorf(spider.EINVALID, "nothing to convert")
	}
	out, err := c.md.ConvertString(html)
	if err != nil {
		return "", spider.Errorf(spider.EINVALID, "html to markdown: %v", err)
	}
	return strings.TrimSpace(out), nil
}
