package main

import (
	"fmt"

	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
)

// Run executes the crawl command.
func (c *CrawlCmd) Run(deps *Dependencies) error {
	crawler := deps.Crawler
	if c.MaxDepth >= 0 {
		crawler.MaxDepth = c.MaxDepth
	}
	if c.Server {
		crawler.Mode = crawl.ModeServer
	}

	if len(c.Seeds) > 0 {
		added, err := deps.Frontier.AddSeed(deps.Ctx, c.Seeds)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
			return err
		}
		fmt.Fprintf(deps.Stdout, "Added %d of %d URLs\n", added, len(c.Seeds))
	}

	workers := c.Workers
	if workers <= 0 {
		workers = deps.Config.Crawl.Workers
	}

	startProxyPool(deps)
	crawler.Progress = progressPrinter(deps)

	result, err := crawler.RunWorkers(deps.Ctx, workers)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error crawling: %s\n", spider.ErrorMessage(err))
		return err
	}

	printSummary(deps, result)
	return nil
}

// startProxyPool loads the proxy sources and keeps the pool fresh in the
// background until the command's context ends.
func startProxyPool(deps *Dependencies) {
	if deps.Pool == nil {
		return
	}
	n, err := deps.Pool.Refresh(deps.Ctx)
	if err != nil {
		deps.Logger.Warn("proxy refresh", "err", err)
	}
	deps.Logger.Info("proxy pool loaded", "added", n, "size", deps.Pool.Len())
	if every := deps.Config.Proxy.MaintainEvery.Duration; every > 0 {
		go deps.Pool.Maintain(deps.Ctx, every)
	}
}

func progressPrinter(deps *Dependencies) crawl.ProgressFunc {
	return func(event crawl.ProgressEvent) {
		switch event.Outcome {
		case crawl.OutcomeFailed, crawl.OutcomeSkippedPolicy:
			fmt.Fprintf(deps.Stderr, "  %s %s: %v\n", event.Outcome, crawl.TruncateURL(event.URL, 80), event.Err)
		default:
			deps.Logger.Debug("task done", "url", event.URL, "depth", event.Depth, "outcome", event.Outcome.String())
		}
	}
}

func printSummary(deps *Dependencies, result *crawl.Result) {
	fmt.Fprintf(deps.Stdout, "Crawled %d URLs: %d visited, %d failed, %d skipped (%s)\n",
		result.Total(), result.Visited, result.Failed,
		result.SkippedDepth+result.SkippedPolicy, crawl.FormatBytes(result.Bytes))
}
