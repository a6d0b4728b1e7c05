package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
)

// Run executes the records command.
func (c *RecordsCmd) Run(deps *Dependencies) error {
	filter := spider.RecordFilter{
		Query:  strings.Join(c.Query, " "),
		Limit:  c.Limit,
		Offset: c.Offset,
	}
	if c.URL != "" {
		u, err := spider.NormalizeURL(c.URL)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
			return err
		}
		filter.URL = &u
	}

	records, err := deps.Records.FindRecords(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(deps.Stdout, "No records.")
		return nil
	}

	total, err := deps.Records.CountRecords(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	tw := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tTITLE\tDEPTH\tSIZE\tFETCHED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.URL, r.Title, r.Depth, crawl.FormatBytes(len(r.Body)), r.FetchedAt.Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Showing %d of %d records\n", len(records), total)
	return nil
}
