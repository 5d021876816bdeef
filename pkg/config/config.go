// Package config loads scraper configuration from an optional YAML file
// and NFTSCRAPER_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asdfghjkxd/NFTScraper/internal/env"
	"github.com/asdfghjkxd/NFTScraper/pkg/dispatch"
	"github.com/asdfghjkxd/NFTScraper/pkg/handoff"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Transport names.
const (
	TransportInProcess = "inproc"
	TransportFile      = "file"
	TransportRedis     = "redis"
)

// Defaults not owned by another package.
const (
	DefaultTransport      = TransportFile
	DefaultDispatcherPath = "nftdispatch"
	DefaultRedisAddr      = "localhost:6379"
)

// Config is the complete scraper configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Handoff  HandoffConfig  `yaml:"handoff"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-"`
}

// LogConfig sets the zerolog level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DispatchConfig tunes the HTTP dispatcher. Zero values take the
// dispatch.DefaultConfig values.
type DispatchConfig struct {
	Concurrency        int           `yaml:"concurrency"`
	PerCallTimeout     time.Duration `yaml:"per_call_timeout"`
	PoolSize           int           `yaml:"pool_size"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	UserAgent          string        `yaml:"user_agent"`
	APIKeyHeader       string        `yaml:"api_key_header"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// HandoffConfig selects the transport between the scraper and the
// dispatcher and configures the file exchange.
type HandoffConfig struct {
	// Transport is inproc, file or redis.
	Transport string `yaml:"transport"`

	Dir         string `yaml:"dir"`
	BatchFile   string `yaml:"batch_file"`
	ResultsFile string `yaml:"results_file"`

	// DispatcherPath is the nftdispatch executable the file transport starts.
	DispatcherPath string `yaml:"dispatcher_path"`

	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

// RedisConfig configures the redis transport. Queue, ResultPrefix and
// the timeouts default to the handoff package's redis defaults.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Queue        string        `yaml:"queue"`
	ResultPrefix string        `yaml:"result_prefix"`
	ResultTTL    time.Duration `yaml:"result_ttl"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set, e.g. ":9090".
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides file values with NFTSCRAPER_* variables.
func applyEnv(cfg *Config) error {
	r := env.NewReader()

	r.String(&cfg.Log.Level, "LOG_LEVEL")
	r.Bool(&cfg.Log.Pretty, "LOG_PRETTY")

	r.Int(&cfg.Dispatch.Concurrency, "CONCURRENCY")
	r.Duration(&cfg.Dispatch.PerCallTimeout, "PER_CALL_TIMEOUT")
	r.Int(&cfg.Dispatch.PoolSize, "POOL_SIZE")
	r.Int64(&cfg.Dispatch.MaxBodyBytes, "MAX_BODY_BYTES")
	r.String(&cfg.Dispatch.UserAgent, "USER_AGENT")

	r.String(&cfg.Handoff.Transport, "TRANSPORT")
	r.String(&cfg.Handoff.Dir, "HANDOFF_DIR")
	r.String(&cfg.Handoff.DispatcherPath, "DISPATCHER_PATH")
	r.Duration(&cfg.Handoff.PollInterval, "POLL_INTERVAL")
	r.Int(&cfg.Handoff.MaxPolls, "MAX_POLLS")

	r.String(&cfg.Redis.Addr, "REDIS_ADDR")
	r.String(&cfg.Redis.Password, "REDIS_PASSWORD")
	r.Int(&cfg.Redis.DB, "REDIS_DB")

	r.String(&cfg.Metrics.Addr, "METRICS_ADDR")

	// Same variable the dispatcher child reads, see handoff.APIKeyEnv.
	r.String(&cfg.APIKey, "API_KEY")

	return r.Err()
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = string(logging.LevelInfo)
	}

	def := dispatch.DefaultConfig()
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = def.Concurrency
	}
	if cfg.Dispatch.PerCallTimeout == 0 {
		cfg.Dispatch.PerCallTimeout = def.PerCallTimeout
	}
	if cfg.Dispatch.PoolSize == 0 {
		cfg.Dispatch.PoolSize = def.PoolSize
	}
	if cfg.Dispatch.MaxBodyBytes == 0 {
		cfg.Dispatch.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.Dispatch.UserAgent == "" {
		cfg.Dispatch.UserAgent = def.UserAgent
	}
	if cfg.Dispatch.APIKeyHeader == "" {
		cfg.Dispatch.APIKeyHeader = def.APIKeyHeader
	}

	if cfg.Handoff.Transport == "" {
		cfg.Handoff.Transport = DefaultTransport
	}
	if cfg.Handoff.Dir == "" {
		cfg.Handoff.Dir = "."
	}
	if cfg.Handoff.BatchFile == "" {
		cfg.Handoff.BatchFile = handoff.DefaultBatchName
	}
	if cfg.Handoff.ResultsFile == "" {
		cfg.Handoff.ResultsFile = handoff.DefaultResultsName
	}
	if cfg.Handoff.DispatcherPath == "" {
		cfg.Handoff.DispatcherPath = DefaultDispatcherPath
	}
	poll := handoff.DefaultPollConfig()
	if cfg.Handoff.PollInterval == 0 {
		cfg.Handoff.PollInterval = poll.Interval
	}
	if cfg.Handoff.MaxPolls == 0 {
		cfg.Handoff.MaxPolls = poll.MaxPolls
	}

	rdef := handoff.DefaultRedisConfig()
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.Queue == "" {
		cfg.Redis.Queue = rdef.Queue
	}
	if cfg.Redis.ResultPrefix == "" {
		cfg.Redis.ResultPrefix = rdef.ResultPrefix
	}
	if cfg.Redis.ResultTTL == 0 {
		cfg.Redis.ResultTTL = rdef.ResultTTL
	}
	if cfg.Redis.BlockTimeout == 0 {
		cfg.Redis.BlockTimeout = rdef.BlockTimeout
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	if err := logging.ValidateLevel(logging.LogLevel(cfg.Log.Level)); err != nil {
		return err
	}

	if err := cfg.DispatcherConfig().Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	switch cfg.Handoff.Transport {
	case TransportInProcess, TransportFile, TransportRedis:
	default:
		return fmt.Errorf("handoff: unknown transport %q (want inproc, file or redis)", cfg.Handoff.Transport)
	}
	if cfg.Handoff.PollInterval < 0 {
		return fmt.Errorf("handoff: poll_interval must be > 0 (got %s)", cfg.Handoff.PollInterval)
	}
	if cfg.Handoff.MaxPolls < 0 {
		return fmt.Errorf("handoff: max_polls must be > 0 (got %d)", cfg.Handoff.MaxPolls)
	}
	if cfg.Handoff.BatchFile == cfg.Handoff.ResultsFile {
		return fmt.Errorf("handoff: batch_file and results_file must differ (both %q)", cfg.Handoff.BatchFile)
	}

	// A poll budget shorter than one call can never see a slow batch finish.
	if cfg.Handoff.Transport != TransportInProcess && cfg.PollConfig().Budget() < cfg.Dispatch.PerCallTimeout {
		return fmt.Errorf("handoff: poll budget %s is shorter than per_call_timeout %s",
			cfg.PollConfig().Budget(), cfg.Dispatch.PerCallTimeout)
	}

	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis: db must be >= 0 (got %d)", cfg.Redis.DB)
	}

	return nil
}

// DispatcherConfig returns the dispatcher settings including the API key.
func (c *Config) DispatcherConfig() dispatch.Config {
	return dispatch.Config{
		Concurrency:        c.Dispatch.Concurrency,
		PerCallTimeout:     c.Dispatch.PerCallTimeout,
		PoolSize:           c.Dispatch.PoolSize,
		MaxBodyBytes:       c.Dispatch.MaxBodyBytes,
		UserAgent:          c.Dispatch.UserAgent,
		APIKey:             c.APIKey,
		APIKeyHeader:       c.Dispatch.APIKeyHeader,
		InsecureSkipVerify: c.Dispatch.InsecureSkipVerify,
	}
}

// Files returns the handoff file locations.
func (c *Config) Files() handoff.Files {
	return handoff.Files{
		Dir:         c.Handoff.Dir,
		BatchName:   c.Handoff.BatchFile,
		ResultsName: c.Handoff.ResultsFile,
	}
}

// PollConfig returns the originator's polling bounds.
func (c *Config) PollConfig() handoff.PollConfig {
	return handoff.PollConfig{
		Interval: c.Handoff.PollInterval,
		MaxPolls: c.Handoff.MaxPolls,
	}
}

// RedisKeys returns the redis transport key layout.
func (c *Config) RedisKeys() handoff.RedisConfig {
	return handoff.RedisConfig{
		Queue:        c.Redis.Queue,
		ResultPrefix: c.Redis.ResultPrefix,
		ResultTTL:    c.Redis.ResultTTL,
		BlockTimeout: c.Redis.BlockTimeout,
	}
}

// RedisOptions returns client options for the configured server.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// Logging returns the logger configuration for process.
func (c *Config) Logging(process string) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.Log.Level)
	lc.Pretty = c.Log.Pretty
	lc.Process = process
	return lc
}

// OverrideTransport replaces the handoff transport, as a command-line flag
// would, and revalidates. On error c is unchanged.
func (c *Config) OverrideTransport(transport string) error {
	prev := c.Handoff.Transport
	c.Handoff.Transport = transport
	if err := validate(c); err != nil {
		c.Handoff.Transport = prev
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
