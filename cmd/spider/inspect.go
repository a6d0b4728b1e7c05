package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/yanchengsi/spider"
)

// Run executes the visited command.
func (c *VisitedCmd) Run(deps *Dependencies) error {
	urls, err := deps.Frontier.SnapshotVisited(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	sort.Strings(urls)
	for _, u := range urls {
		fmt.Fprintln(deps.Stdout, u)
	}
	return nil
}

// Run executes the stats command.
func (c *StatsCmd) Run(deps *Dependencies) error {
	stats, err := deps.Frontier.Stats(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	tw := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(tw, "in_progress\t%d\n", stats.InProgress)
	fmt.Fprintf(tw, "visited\t%d\n", stats.Visited)
	fmt.Fprintf(tw, "failed\t%d\n", stats.Failed)
	fmt.Fprintf(tw, "total\t%d\n", stats.Total())
	return tw.Flush()
}

// Run executes the proxies command.
func (c *ProxiesCmd) Run(deps *Dependencies) error {
	if len(deps.Config.Proxy.Sources) == 0 {
		err := spider.Errorf(spider.EINVALID, "no proxy sources configured")
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	added, err := deps.Pool.Refresh(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Added %d proxies\n", added)

	if c.Check {
		removed, err := deps.Pool.PeriodicCheck(deps.Ctx)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
			return err
		}
		fmt.Fprintf(deps.Stdout, "Removed %d proxies\n", removed)
	}

	proxies := deps.Pool.List()
	if len(proxies) == 0 {
		fmt.Fprintln(deps.Stdout, "No proxies.")
		return nil
	}

	tw := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tPROTOCOL\tSCORE\tLATENCY")
	for _, p := range proxies {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Address, p.Protocol, p.Score, p.Latency.Round(time.Millisecond))
	}
	return tw.Flush()
}
