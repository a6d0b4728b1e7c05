package mock

import (
	"context"

	"github.com/yanchengsi/spider"
)

var _ spider.Parser = (*Parser)(nil)

// Parser is a mock implementation of spider.Parser.
type Parser struct {
	ParseFn        func(html string, baseURL string) (*spider.Record, error)
	ExtractLinksFn func(html string, baseURL string) ([]string, error)
}

func (p *Parser) Parse(html string, baseURL string) (*spider.Record, error) {
	return p.ParseFn(html, baseURL)
}

func (p *Parser) ExtractLinks(html string, baseURL string) ([]string, error) {
	return p.ExtractLinksFn(html, baseURL)
}

var _ spider.Storage = (*Storage)(nil)

// Storage is a mock implementation of spider.Storage.
type Storage struct {
	SaveFn func(ctx context.Context, record *spider.Record) error
}

func (s *Storage) Save(ctx context.Context, record *spider.Record) error {
	return s.SaveFn(ctx, record)
}

var _ spider.RecordFinder = (*RecordFinder)(nil)

// RecordFinder is a mock implementation of spider.RecordFinder.
type RecordFinder struct {
	FindRecordsFn  func(ctx context.Context, filter spider.RecordFilter) ([]*spider.Record, error)
	CountRecordsFn func(ctx context.Context, filter spider.RecordFilter) (int, error)
}

func (f *RecordFinder) FindRecords(ctx context.Context, filter spider.RecordFilter) ([]*spider.Record, error) {
	return f.FindRecordsFn(ctx, filter)
}

func (f *RecordFinder) CountRecords(ctx context.Context, filter spider.RecordFilter) (int, error) {
	return f.CountRecordsFn(ctx, filter)
}
