package mock

import "github.com/yanchengsi/spider"

var _ spider.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of spider.Extractor.
type Extractor struct {
	ExtractFn func(html string) (*spider.ExtractResult, error)
}

func (e *Extractor) Extract(html string) (*spider.ExtractResult, error) {
	return e.ExtractFn(html)
}

var _ spider.Converter = (*Converter)(nil)

// Converter is a mock implementation of spider.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
