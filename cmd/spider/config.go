package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
	"github.com/yanchengsi/spider/proxypool"
	"github.com/yanchengsi/spider/redis"
	"github.com/yanchengsi/spider/robotstxt"
	"gopkg.in/yaml.v3"
)

// AppName is the application name used for XDG directory paths.
const AppName = "spider"

// Frontier and storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendRemote = "remote"
	BackendFile   = "file"
)

// Run modes.
const (
	ModeBatch  = "batch"
	ModeServer = "server"
)

// Main-content extractors. ExtractorNone keeps the full page text.
const (
	ExtractorNone        = "none"
	ExtractorTrafilatura = "trafilatura"
	ExtractorReadability = "readability"
)

// Record body formats.
const (
	BodyText     = "text"
	BodyMarkdown = "markdown"
)

// DefaultServerAddr is where the control API listens.
const DefaultServerAddr = ":5000"

// DefaultMaxInflight caps tasks a dispatcher keeps on the queue.
const DefaultMaxInflight = 100

// Config is the YAML configuration file.
type Config struct {
	Frontier FrontierConfig `yaml:"frontier"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Robots   RobotsConfig   `yaml:"robots"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type FrontierConfig struct {
	Backend    string      `yaml:"backend"`
	Redis      RedisConfig `yaml:"redis"`
	SQLitePath string      `yaml:"sqlite_path"`
	RemoteURL  string      `yaml:"remote_url"`
	Bloom      BloomConfig `yaml:"bloom"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BloomConfig sizes the Redis admission pre-filter. Expected == 0 disables it.
type BloomConfig struct {
	Expected uint    `yaml:"expected"`
	FPRate   float64 `yaml:"fp_rate"`
}

type CrawlConfig struct {
	MaxDepth     int               `yaml:"max_depth"`
	Workers      int               `yaml:"workers"`
	Interval     Duration          `yaml:"interval"`
	Jitter       Duration          `yaml:"jitter"`
	FetchTimeout Duration          `yaml:"fetch_timeout"`
	IdleWait     Duration          `yaml:"idle_wait"`
	Mode         string            `yaml:"mode"`
	PerDomainRPS float64           `yaml:"per_domain_rps"`
	Headers      map[string]string `yaml:"headers"`
	MaxBodyBytes int64             `yaml:"max_body_bytes"`
	Extractor    string            `yaml:"extractor"`
	BodyFormat   string            `yaml:"body_format"`
	SameHostOnly bool              `yaml:"same_host_only"`
}

type RobotsConfig struct {
	Enabled   bool     `yaml:"enabled"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	Timeout   Duration `yaml:"timeout"`
}

type ProxyConfig struct {
	Enabled         bool                `yaml:"enabled"`
	Sources         []ProxySourceConfig `yaml:"sources"`
	MaxProxies      int                 `yaml:"max_proxies"`
	CheckInterval   Duration            `yaml:"check_interval"`
	ValidateTimeout Duration            `yaml:"validate_timeout"`
	EchoURL         string              `yaml:"echo_url"`
	RefreshWorkers  int                 `yaml:"refresh_workers"`
	CheckWorkers    int                 `yaml:"check_workers"`
	MaintainEvery   Duration            `yaml:"maintain_every"`
}

type ProxySourceConfig struct {
	URL      string `yaml:"url"`
	Protocol string `yaml:"protocol"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type QueueConfig struct {
	Redis       RedisConfig `yaml:"redis"`
	TaskKey     string      `yaml:"task_key"`
	ResultKey   string      `yaml:"result_key"`
	Wait        Duration    `yaml:"wait"`
	MaxInflight int         `yaml:"max_inflight"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Frontier: FrontierConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: redis.DefaultPrefix,
			},
			Bloom: BloomConfig{FPRate: 0.01},
		},
		Crawl: CrawlConfig{
			MaxDepth:     crawl.DefaultMaxDepth,
			Workers:      10,
			Interval:     DurationFrom(crawl.DefaultInterval),
			Jitter:       DurationFrom(crawl.DefaultJitter),
			FetchTimeout: DurationFrom(crawl.DefaultFetchTimeout),
			IdleWait:     DurationFrom(crawl.DefaultIdleWait),
			Mode:         ModeBatch,
			Extractor:    ExtractorNone,
			BodyFormat:   BodyText,
		},
		Robots: RobotsConfig{
			Enabled:   true,
			UserAgent: robotstxt.DefaultUserAgent,
			CacheTTL:  DurationFrom(spider.DefaultRobotsTTL),
			Timeout:   DurationFrom(robotstxt.DefaultTimeout),
		},
		Proxy: ProxyConfig{
			MaxProxies:      proxypool.DefaultMaxProxies,
			CheckInterval:   DurationFrom(proxypool.DefaultCheckInterval),
			ValidateTimeout: DurationFrom(proxypool.DefaultValidateTimeout),
			EchoURL:         proxypool.DefaultEchoURL,
			RefreshWorkers:  proxypool.DefaultRefreshWorkers,
			CheckWorkers:    proxypool.DefaultCheckWorkers,
			MaintainEvery:   DurationFrom(10 * time.Minute),
		},
		Storage: StorageConfig{
			Backend: BackendFile,
		},
		Queue: QueueConfig{
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
			},
			TaskKey:     redis.DefaultTaskKey,
			ResultKey:   redis.DefaultResultKey,
			Wait:        DurationFrom(5 * time.Second),
			MaxInflight: DefaultMaxInflight,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DataDir returns the XDG data directory for spider.
// On Linux: ~/.local/share/spider
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultConfigPath returns the config file read when --config is not set.
// On Linux: ~/.config/spider/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// An empty path reads DefaultConfigPath when it exists.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	return LoadConfigFromReader(fh)
}

// LoadConfigFromReader decodes configuration from an arbitrary reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and numeric ranges.
func (c Config) Validate() error {
	switch c.Frontier.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	case BackendRemote:
		if c.Frontier.RemoteURL == "" {
			return errors.New("frontier.remote_url must be set for the remote backend")
		}
	default:
		return fmt.Errorf("frontier.backend must be memory, redis, sqlite or remote (got %q)", c.Frontier.Backend)
	}
	if c.Frontier.Bloom.Expected > 0 && (c.Frontier.Bloom.FPRate <= 0 || c.Frontier.Bloom.FPRate >= 1) {
		return fmt.Errorf("frontier.bloom.fp_rate must be in (0, 1) (got %v)", c.Frontier.Bloom.FPRate)
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0 (got %d)", c.Crawl.Workers)
	}
	if c.Crawl.Mode != ModeBatch && c.Crawl.Mode != ModeServer {
		return fmt.Errorf("crawl.mode must be batch or server (got %q)", c.Crawl.Mode)
	}
	switch c.Crawl.Extractor {
	case ExtractorNone, ExtractorTrafilatura, ExtractorReadability:
	default:
		return fmt.Errorf("crawl.extractor must be none, trafilatura or readability (got %q)", c.Crawl.Extractor)
	}
	if c.Crawl.BodyFormat != BodyText && c.Crawl.BodyFormat != BodyMarkdown {
		return fmt.Errorf("crawl.body_format must be text or markdown (got %q)", c.Crawl.BodyFormat)
	}
	if c.Crawl.PerDomainRPS < 0 {
		return fmt.Errorf("crawl.per_domain_rps must be >= 0 (got %v)", c.Crawl.PerDomainRPS)
	}
	if c.Robots.Enabled && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set")
	}
	if c.Proxy.Enabled && len(c.Proxy.Sources) == 0 {
		return errors.New("proxy.sources must list at least one source when proxies are enabled")
	}
	for i, src := range c.Proxy.Sources {
		if src.URL == "" {
			return fmt.Errorf("proxy source %d has empty url", i)
		}
	}
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be file or sqlite (got %q)", c.Storage.Backend)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}
	return nil
}

// SQLitePath returns the frontier database path.
func (c Config) SQLitePath() string {
	if c.Frontier.SQLitePath != "" {
		return c.Frontier.SQLitePath
	}
	return filepath.Join(DataDir(), "spider.db")
}

// StoragePath returns the record output path for the storage backend.
func (c Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == BackendSQLite {
		return filepath.Join(DataDir(), "spider.db")
	}
	return filepath.Join(DataDir(), "records.jsonl")
}

// CrawlHeaders returns the default request headers overlaid with the
// configured ones.
func (c Config) CrawlHeaders() map[string]string {
	headers := crawl.DefaultHeaders()
	for k, v := range c.Crawl.Headers {
		headers[k] = v
	}
	return headers
}

// ProxySources converts the configured sources for the pool.
func (c Config) ProxySources() []proxypool.Source {
	sources := make([]proxypool.Source, 0, len(c.Proxy.Sources))
	for _, s := range c.Proxy.Sources {
		sources = append(sources, proxypool.Source{URL: s.URL, Protocol: s.Protocol})
	}
	return sources
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// Duration wraps time.Duration to support human-readable YAML values.
type Duration struct {
	time.Duration
}

// DurationFrom creates a Duration from a standard time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML emits duration values as strings.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// UnmarshalYAML accepts either a string duration or numeric seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int:
		d.Duration = time.Duration(v) * time.Second
		return nil
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
		return nil
	default:
		return fmt.Errorf("unsupported duration type %T", raw)
	}
}
