// Package goquery parses fetched HTML into records with goquery.
package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yanchengsi/spider"
)

// Ensure Parser implements spider.Parser at compile time.
var _ spider.Parser = (*Parser)(nil)

// Parser extracts title, body text, meta tags, images and links from HTML.
type Parser struct {
	extractor spider.Extractor
	converter spider.Converter
	sameHost  bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithExtractor sets a main-content extractor for the record body.
// When it fails or finds no text, the full body text is used.
func WithExtractor(e spider.Extractor) Option {
	return func(p *Parser) {
		p.extractor = e
	}
}

// WithConverter stores the record body as Markdown converted from the
// extracted content, or from the page body when there is none.
func WithConverter(c spider.Converter) Option {
	return func(p *Parser) {
		p.converter = c
	}
}

// WithSameHostOnly drops links to hosts other than the page's own.
func WithSameHostOnly() Option {
	return func(p *Parser) {
		p.sameHost = true
	}
}

// NewParser creates a new Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse builds a record from html. The record's URL is the normalized
// baseURL; depth and fetch time are left to the caller.
func (p *Parser) Parse(html string, baseURL string) (*spider.Record, error) {
	base, doc, err := load(html, baseURL)
	if err != nil {
		return nil, err
	}

	rec := &spider.Record{
		URL:    selfURL(base),
		Title:  strings.TrimSpace(doc.Find("title").First().Text()),
		Meta:   extractMeta(doc),
		Images: extractImages(doc, base),
		Links:  extractLinks(doc, base, p.sameHost),
	}

	doc.Find("script, style, noscript, template").Remove()
	body := doc.Find("body")
	rec.Body = collapseSpace(body.Text())
	contentHTML, _ := body.Html()

	if p.extractor != nil {
		if res, err := p.extractor.Extract(html); err == nil {
			if res.Text != "" {
				rec.Body = res.Text
			}
			if res.ContentHTML != "" {
				contentHTML = res.ContentHTML
			}
			if rec.Title == "" {
				rec.Title = res.Title
			}
		}
	}

	if p.converter != nil && strings.TrimSpace(contentHTML) != "" {
		if md, err := p.converter.Convert(contentHTML); err == nil {
			rec.Body = md
		}
	}

	return rec, nil
}

// ExtractLinks returns the absolute URLs of all links in html.
func (p *Parser) ExtractLinks(html string, baseURL string) ([]string, error) {
	base, doc, err := load(html, baseURL)
	if err != nil {
		return nil, err
	}
	return extractLinks(doc, base, p.sameHost), nil
}

func load(html, baseURL string) (*url.URL, *goquery.Document, error) {
	if _, err := spider.NormalizeURL(baseURL); err != nil {
		return nil, nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, spider.Errorf(spider.EINVALID, "invalid base URL: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, spider.Errorf(spider.EINVALID, "failed to parse HTML: %v", err)
	}
	return base, doc, nil
}

// extractMeta maps each meta tag's name (or property) to its content.
func extractMeta(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			name = sel.AttrOr("property", "")
		}
		content, ok := sel.Attr("content")
		if name == "" || !ok || content == "" {
			return
		}
		meta[name] = content
	})
	return meta
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
