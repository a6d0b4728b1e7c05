package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
	"github.com/yanchengsi/spider/proxypool"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx      context.Context
	Stdout   io.Writer
	Stderr   io.Writer
	Config   *Config
	Logger   *slog.Logger
	Frontier spider.Frontier
	Crawler  *crawl.Crawler
	Pool     *proxypool.Pool
	Queue    spider.TaskQueue
	Records  spider.RecordFinder
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config  string `short:"c" type:"path" help:"Path to YAML config file"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Seed     SeedCmd     `cmd:"" help:"Add seed URLs to the frontier"`
	Crawl    CrawlCmd    `cmd:"" help:"Crawl pending URLs until the frontier drains"`
	Serve    ServeCmd    `cmd:"" help:"Serve the frontier over the control API"`
	Work     WorkCmd     `cmd:"" help:"Crawl tasks taken from the task queue"`
	Dispatch DispatchCmd `cmd:"" help:"Move frontier tasks onto the task queue and apply results"`
	Visited  VisitedCmd  `cmd:"" help:"List visited URLs"`
	Stats    StatsCmd    `cmd:"" help:"Show frontier counts by state"`
	Proxies  ProxiesCmd  `cmd:"" help:"Fetch proxy sources and list the scored pool"`
	Records  RecordsCmd  `cmd:"" help:"Search records kept in SQLite storage"`
}

// SeedCmd is the "seed" subcommand.
type SeedCmd struct {
	URLs []string `arg:"" optional:"" help:"Seed URLs"`
	File string   `short:"f" type:"existingfile" help:"Read seed URLs from a file, one per line"`
}

// CrawlCmd is the "crawl" subcommand.
type CrawlCmd struct {
	Seeds    []string `arg:"" optional:"" help:"Seed URLs added before crawling"`
	Workers  int      `short:"w" help:"Concurrent workers (default from config)"`
	MaxDepth int      `short:"d" default:"-1" help:"Maximum link depth (default from config)"`
	Server   bool     `help:"Keep waiting for new URLs after the frontier drains"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Addr    string `short:"a" help:"Listen address (default from config)"`
	Crawl   bool   `help:"Also run crawl workers against the served frontier"`
	Workers int    `short:"w" help:"Concurrent workers with --crawl (default from config)"`
}

// WorkCmd is the "work" subcommand.
type WorkCmd struct {
	Workers  int  `short:"w" help:"Concurrent workers (default from config)"`
	ExitIdle bool `help:"Exit when the queue stays empty for one wait period"`
}

// DispatchCmd is the "dispatch" subcommand.
type DispatchCmd struct {
	Seeds  []string `arg:"" optional:"" help:"Seed URLs added before dispatching"`
	Server bool     `help:"Keep dispatching after the frontier drains"`
}

// VisitedCmd is the "visited" subcommand.
type VisitedCmd struct{}

// RecordsCmd is the "records" subcommand.
type RecordsCmd struct {
	Query  []string `arg:"" optional:"" help:"Terms that must all occur in the title or body"`
	URL    string   `short:"u" help:"Only the record saved for this URL"`
	Limit  int      `short:"n" default:"20" help:"Maximum records to print (0 for all)"`
	Offset int      `help:"Records to skip"`
	JSON   bool     `help:"Print full records as JSON"`
}

// StatsCmd is the "stats" subcommand.
type StatsCmd struct {
	JSON bool `help:"Print counts as JSON"`
}

// ProxiesCmd is the "proxies" subcommand.
type ProxiesCmd struct {
	Check bool `help:"Validate every proxy after fetching the sources"`
}
