// Package trafilatura extracts the main text of a page with go-trafilatura.
package trafilatura

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"github.com/yanchengsi/spider"
	"golang.org/x/net/html"
)

// Ensure Extractor implements spider.Extractor at compile time.
var _ spider.Extractor = (*Extractor)(nil)

// boilerplate matches page chrome removed before extraction. Headers inside
// an article or main element usually carry the headline and are kept.
const boilerplate = "nav, footer, aside, [role=navigation], [role=contentinfo]"

// Extractor wraps go-trafilatura to extract main content from HTML.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract processes raw HTML and returns the title and main content.
// Site chrome is stripped first; the fallback extractor keeps it on short
// pages.
func (e *Extractor) Extract(rawHTML string) (*spider.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, spider.Errorf(spider.EINVALID, "empty HTML input")
	}

	page, err := stripBoilerplate(rawHTML)
	if err != nil {
		return nil, err
	}

	result, err := trafilatura.Extract(strings.NewReader(page), trafilatura.Options{
		EnableFallback: true,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(result.ContentText)
	var contentHTML string
	if result.ContentNode != nil {
		if text == "" {
			text = nodeText(result.ContentNode)
		}
		var sb strings.Builder
		if err := html.Render(&sb, result.ContentNode); err == nil {
			contentHTML = sb.String()
		}
	}

	return &spider.ExtractResult{
		Title:       result.Metadata.Title,
		Text:        text,
		ContentHTML: contentHTML,
	}, nil
}

func stripBoilerplate(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", spider.Errorf(spider.EINVALID, "parse HTML: %v", err)
	}
	doc.Find("body").Find(boilerplate).Remove()
	doc.Find("body header").Not("article header, main header").Remove()
	return doc.Html()
}

// nodeText joins the text nodes under n, one block per line.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "\n")
}
