package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/bloom"
	"github.com/yanchengsi/spider/crawl"
	"github.com/yanchengsi/spider/fs"
	"github.com/yanchengsi/spider/goquery"
	"github.com/yanchengsi/spider/htmltomarkdown"
	spiderhttp "github.com/yanchengsi/spider/http"
	"github.com/yanchengsi/spider/proxypool"
	"github.com/yanchengsi/spider/readability"
	"github.com/yanchengsi/spider/redis"
	"github.com/yanchengsi/spider/robotstxt"
	spiderslog "github.com/yanchengsi/spider/slog"
	"github.com/yanchengsi/spider/sqlite"
	"github.com/yanchengsi/spider/trafilatura"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	m := NewMain()

	err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Config replaces the file named by --config. Set before calling Run().
	Config *Config

	// Services for end-to-end testing. When set, they are used instead of
	// the ones built from configuration.
	Frontier spider.Frontier
	Fetcher  spider.Fetcher
	Queue    spider.TaskQueue

	closers []io.Closer
	dbs     map[string]*sqlite.DB
	clients map[RedisConfig]*redis.Client
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		dbs:     make(map[string]*sqlite.DB),
		clients: make(map[RedisConfig]*redis.Client),
	}
}

// Close releases every connection and file opened by Run, newest first.
func (m *Main) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i].Close())
	}
	m.closers = nil
	m.dbs = make(map[string]*sqlite.DB)
	m.clients = make(map[RedisConfig]*redis.Client)
	return errors.Join(errs...)
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Initialize dependencies struct for Kong binding
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("spider"),
		kong.Description("Distributed web crawler with a shared frontier, proxy pool and robots.txt politeness."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'spider --help' to see available commands")
	}

	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg := m.Config
	if cfg == nil {
		cfg, err = LoadConfig(cli.Config)
		if err != nil {
			return err
		}
	}
	deps.Config = cfg
	deps.Logger = newLogger(cfg.Logging, cli.Verbose, stderr)

	defer m.Close()

	cmd := strings.Fields(kongCtx.Command())[0]
	if err := m.wire(ctx, cmd, cli, deps); err != nil {
		return err
	}

	return kongCtx.Run(deps)
}

// wire builds the services the chosen command needs.
func (m *Main) wire(ctx context.Context, cmd string, cli *CLI, deps *Dependencies) error {
	cfg := deps.Config
	logger := deps.Logger

	if cmd == "records" {
		if cfg.Storage.Backend != BackendSQLite {
			return spider.Errorf(spider.EINVALID, "records needs storage.backend sqlite (got %q)", cfg.Storage.Backend)
		}
		db, err := m.openSQLite(ctx, cfg.StoragePath(), logger)
		if err != nil {
			return err
		}
		deps.Records = sqlite.NewRecordStore(db)
		return nil
	}

	if m.Frontier == nil && cfg.Frontier.Backend == BackendMemory && sharesFrontier(cmd) {
		err := spider.Errorf(spider.EINVALID,
			"%s needs a frontier shared between processes; set frontier.backend to redis, sqlite or remote", cmd)
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	if cmd != "proxies" {
		frontier, err := m.openFrontier(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "Hint: check frontier.backend in %s\n", configHint(cli.Config))
			return err
		}
		deps.Frontier = frontier
	}

	if cmd == "work" || cmd == "dispatch" {
		queue, err := m.openQueue(ctx, cfg, logger)
		if err != nil {
			return err
		}
		deps.Queue = queue
	}

	if cmd == "proxies" || (cfg.Proxy.Enabled && needsCrawler(cmd, cli)) {
		deps.Pool = proxypool.New(proxypool.Config{
			Sources:         cfg.ProxySources(),
			MaxProxies:      cfg.Proxy.MaxProxies,
			CheckInterval:   cfg.Proxy.CheckInterval.Duration,
			ValidateTimeout: cfg.Proxy.ValidateTimeout.Duration,
			EchoURL:         cfg.Proxy.EchoURL,
			RefreshWorkers:  cfg.Proxy.RefreshWorkers,
			CheckWorkers:    cfg.Proxy.CheckWorkers,
		}, proxypool.WithLogger(logger))
	}

	if needsCrawler(cmd, cli) {
		crawler, err := m.buildCrawler(ctx, cfg, cli.Verbose, deps)
		if err != nil {
			return err
		}
		deps.Crawler = crawler
	}

	return nil
}

// sharesFrontier reports whether cmd only makes sense against a frontier
// that outlives the process.
func sharesFrontier(cmd string) bool {
	switch cmd {
	case "seed", "visited", "stats", "dispatch", "work":
		return true
	}
	return false
}

func needsCrawler(cmd string, cli *CLI) bool {
	return cmd == "crawl" || cmd == "work" || (cmd == "serve" && cli.Serve.Crawl)
}

func configHint(path string) string {
	if path != "" {
		return path
	}
	return DefaultConfigPath()
}

func (m *Main) openFrontier(ctx context.Context, cfg *Config, logger *slog.Logger) (spider.Frontier, error) {
	if m.Frontier != nil {
		return m.Frontier, nil
	}

	switch cfg.Frontier.Backend {
	case BackendRedis:
		c, err := m.openRedis(ctx, cfg.Frontier.Redis, logger)
		if err != nil {
			return nil, err
		}
		opts := []redis.FrontierOption{redis.WithPrefix(cfg.Frontier.Redis.Prefix)}
		if b := cfg.Frontier.Bloom; b.Expected > 0 {
			opts = append(opts, redis.WithSeenFilter(bloom.NewFilter(b.Expected, b.FPRate)))
		}
		return redis.NewFrontier(c, opts...), nil
	case BackendSQLite:
		db, err := m.openSQLite(ctx, cfg.SQLitePath(), logger)
		if err != nil {
			return nil, err
		}
		return sqlite.NewFrontier(db), nil
	case BackendRemote:
		f := spiderhttp.NewRemoteFrontier(cfg.Frontier.RemoteURL)
		if err := crawl.Retry(ctx, "ping control api", crawl.DefaultRetryDelays(), logger, f.Ping); err != nil {
			return nil, fmt.Errorf("control API at %s unreachable: %w", cfg.Frontier.RemoteURL, err)
		}
		return f, nil
	default:
		return crawl.NewFrontier(), nil
	}
}

func (m *Main) openQueue(ctx context.Context, cfg *Config, logger *slog.Logger) (spider.TaskQueue, error) {
	if m.Queue != nil {
		return m.Queue, nil
	}
	c, err := m.openRedis(ctx, cfg.Queue.Redis, logger)
	if err != nil {
		return nil, err
	}
	return redis.NewTaskQueue(c, cfg.Queue.TaskKey, cfg.Queue.ResultKey), nil
}

func (m *Main) openStorage(ctx context.Context, cfg *Config, logger *slog.Logger) (spider.Storage, error) {
	path := cfg.StoragePath()
	if cfg.Storage.Backend == BackendSQLite {
		db, err := m.openSQLite(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		return sqlite.NewRecordStore(db), nil
	}

	store := fs.NewJSONLStore(path)
	m.closers = append(m.closers, store)
	return store, nil
}

// openRedis connects once per distinct server config. Connection failures
// are retried with backoff and are fatal after that.
func (m *Main) openRedis(ctx context.Context, rc RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	key := rc
	key.Prefix = ""
	if c, ok := m.clients[key]; ok {
		return c, nil
	}

	c := redis.NewClient(redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	m.closers = append(m.closers, c)
	if err := crawl.Retry(ctx, "connect redis", crawl.DefaultRetryDelays(), logger, c.Open); err != nil {
		return nil, fmt.Errorf("redis at %s unreachable: %w", rc.Addr, err)
	}
	m.clients[key] = c
	return c, nil
}

// openSQLite opens each database file once, so the frontier and record
// store can share a connection.
func (m *Main) openSQLite(ctx context.Context, path string, logger *slog.Logger) (*sqlite.DB, error) {
	if db, ok := m.dbs[path]; ok {
		return db, nil
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	db := sqlite.NewDB(path)
	if err := db.Open(); err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}
	m.closers = append(m.closers, db)
	if err := crawl.Retry(ctx, "ping sqlite", crawl.DefaultRetryDelays(), logger, db.Ping); err != nil {
		return nil, err
	}
	m.dbs[path] = db
	return db, nil
}

func (m *Main) buildCrawler(ctx context.Context, cfg *Config, verbose bool, deps *Dependencies) (*crawl.Crawler, error) {
	logger := deps.Logger

	fetcher := m.Fetcher
	if fetcher == nil {
		opts := []spiderhttp.Option{spiderhttp.WithTimeout(cfg.Crawl.FetchTimeout.Duration)}
		if cfg.Crawl.MaxBodyBytes > 0 {
			opts = append(opts, spiderhttp.WithMaxBodySize(cfg.Crawl.MaxBodyBytes))
		}
		f := spiderhttp.NewFetcher(opts...)
		m.closers = append(m.closers, f)
		fetcher = f
	}

	storage, err := m.openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if verbose {
		fetcher = spiderslog.NewLoggingFetcher(fetcher, logger)
		storage = spiderslog.NewLoggingStorage(storage, logger)
	}

	var parserOpts []goquery.Option
	switch cfg.Crawl.Extractor {
	case ExtractorTrafilatura:
		parserOpts = append(parserOpts, goquery.WithExtractor(trafilatura.NewExtractor()))
	case ExtractorReadability:
		parserOpts = append(parserOpts, goquery.WithExtractor(readability.NewExtractor()))
	}
	if cfg.Crawl.BodyFormat == BodyMarkdown {
		parserOpts = append(parserOpts, goquery.WithConverter(htmltomarkdown.NewConverter()))
	}
	if cfg.Crawl.SameHostOnly {
		parserOpts = append(parserOpts, goquery.WithSameHostOnly())
	}

	c := &crawl.Crawler{
		Frontier:     deps.Frontier,
		Fetcher:      fetcher,
		Parser:       goquery.NewParser(parserOpts...),
		Storage:      storage,
		Logger:       logger,
		MaxDepth:     cfg.Crawl.MaxDepth,
		Headers:      cfg.CrawlHeaders(),
		FetchTimeout: cfg.Crawl.FetchTimeout.Duration,
		Interval:     cfg.Crawl.Interval.Duration,
		Jitter:       cfg.Crawl.Jitter.Duration,
		IdleWait:     cfg.Crawl.IdleWait.Duration,
		Mode:         crawl.ModeBatch,
	}
	if cfg.Crawl.Mode == ModeServer {
		c.Mode = crawl.ModeServer
	}

	if cfg.Robots.Enabled {
		c.Robots = robotstxt.NewChecker(
			robotstxt.WithUserAgent(cfg.Robots.UserAgent),
			robotstxt.WithTTL(cfg.Robots.CacheTTL.Duration),
			robotstxt.WithTimeout(cfg.Robots.Timeout.Duration),
			robotstxt.WithLogger(logger),
		)
	}
	if cfg.Crawl.PerDomainRPS > 0 {
		c.RateLimiter = crawl.NewDomainLimiter(cfg.Crawl.PerDomainRPS)
	}
	if deps.Pool != nil {
		c.Proxies = deps.Pool
	}

	return c, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
