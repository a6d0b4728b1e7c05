package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
	spiderhttp "github.com/yanchengsi/spider/http"
	"golang.org/x/sync/errgroup"
)

// Run executes the serve command.
func (c *ServeCmd) Run(deps *Dependencies) error {
	addr := c.Addr
	if addr == "" {
		addr = deps.Config.Server.Addr
	}

	server := spiderhttp.NewServer(deps.Frontier, spiderhttp.WithServerLogger(deps.Logger))

	g, ctx := errgroup.WithContext(deps.Ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx, addr)
	})

	if c.Crawl && deps.Crawler != nil {
		workers := c.Workers
		if workers <= 0 {
			workers = deps.Config.Crawl.Workers
		}
		crawler := deps.Crawler
		crawler.Mode = crawl.ModeServer
		crawler.Progress = progressPrinter(deps)

		g.Go(func() error {
			scoped := *deps
			scoped.Ctx = ctx
			startProxyPool(&scoped)
			_, err := crawler.RunWorkers(ctx, workers)
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}
	return nil
}
