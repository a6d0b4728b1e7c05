// Package redis provides the shared frontier and task queue backed by
// Redis via github.com/go-redis/redis/v8.
package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "spider"

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps a go-redis client shared by the frontier and task queue.
type Client struct {
	rdb  *redis.Client
	opts Options
}

// NewClient creates a Client. Call Open before use.
func NewClient(opts Options) *Client {
	return &Client{opts: opts}
}

// Open connects and verifies the server answers PING. It may be called
// again after a failed ping.
func (c *Client) Open(ctx context.Context) error {
	if c.opts.Addr == "" {
		return fmt.Errorf("redis address required")
	}
	if c.rdb == nil {
		c.rdb = redis.NewClient(&redis.Options{
			Addr:     c.opts.Addr,
			Password: c.opts.Password,
			DB:       c.opts.DB,
		})
	}
	return c.Ping(ctx)
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis at %s: %w", c.opts.Addr, err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
