package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/yanchengsi/spider"
)

// Run executes the seed command.
func (c *SeedCmd) Run(deps *Dependencies) error {
	urls := append([]string(nil), c.URLs...)
	if c.File != "" {
		fromFile, err := readURLFile(c.File)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %v\n", err)
			return err
		}
		urls = append(urls, fromFile...)
	}

	if len(urls) == 0 {
		err := spider.Errorf(spider.EINVALID, "no seed URLs given")
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	added, err := deps.Frontier.AddSeed(deps.Ctx, urls)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Added %d of %d URLs\n", added, len(urls))
	return nil
}

// readURLFile reads one URL per line, skipping blank lines and # comments.
func readURLFile(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var urls []string
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return urls, nil
}
