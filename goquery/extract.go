package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yanchengsi/spider"
)

// extractLinks returns the absolute, normalized targets of every anchor in
// doc in document order. Duplicates and self-references are dropped.
// With sameHost set, links to other hosts are filtered out.
func extractLinks(doc *goquery.Document, base *url.URL, sameHost bool) []string {
	return collectURLs(doc, "a[href]", "href", base, func(resolved string) bool {
		if resolved == selfURL(base) {
			return false
		}
		return !sameHost || isSameHost(base, resolved)
	})
}

// extractImages returns the absolute URLs of every img src in doc.
func extractImages(doc *goquery.Document, base *url.URL) []string {
	return collectURLs(doc, "img[src]", "src", base, nil)
}

func collectURLs(doc *goquery.Document, selector, attr string, base *url.URL, keep func(string) bool) []string {
	seen := make(map[string]struct{})
	urls := make([]string, 0)

	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr(attr)
		if !exists || strings.TrimSpace(href) == "" {
			return
		}

		// Skip non-HTTP links (javascript:, mailto:, etc.)
		if isNonHTTPLink(href) {
			return
		}

		resolved, err := spider.ResolveURL(base.String(), href)
		if err != nil {
			return
		}
		if keep != nil && !keep(resolved) {
			return
		}

		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		urls = append(urls, resolved)
	})

	return urls
}

// selfURL returns the normalized base URL, used to filter anchor-only links
// pointing back at the same page.
func selfURL(base *url.URL) string {
	s, err := spider.NormalizeURL(base.String())
	if err != nil {
		return ""
	}
	return s
}

// isSameHost checks if the resolved URL has the same host as the base URL.
// This uses exact host matching - subdomains are considered different hosts.
func isSameHost(base *url.URL, resolved string) bool {
	u, err := url.Parse(resolved)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), base.Hostname())
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
