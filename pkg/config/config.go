package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Keys follow the YAML path,
// e.g. FINCAST_SERVER_READ_TIMEOUT or FINCAST_CACHE_REDIS_HOST. Fields carry
// no envconfig name tags so unprefixed variables like PATH or USER never leak
// into the config.
const EnvPrefix = "FINCAST"

type Config struct {
	Environment string           `yaml:"environment" split_words:"true"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	CORS        CORSConfig       `yaml:"cors"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
	MarketData  MarketDataConfig `yaml:"marketdata"`
	Cache       CacheConfig      `yaml:"cache"`
	Forecast    ForecastConfig   `yaml:"forecast"`
	Report      ReportConfig     `yaml:"report"`
	Journal     JournalConfig    `yaml:"journal"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	SQLite      SQLiteConfig     `yaml:"sqlite"`
	Kafka       KafkaConfig      `yaml:"kafka"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

type LogConfig struct {
	Level     string `yaml:"level" split_words:"true"`
	Format    string `yaml:"format" split_words:"true"`
	Output    string `yaml:"output" split_words:"true"`
	Collector struct {
		Enabled   bool          `yaml:"enabled" split_words:"true"`
		Topic     string        `yaml:"topic" split_words:"true"`
		Interval  time.Duration `yaml:"interval" split_words:"true"`
		Threshold int           `yaml:"threshold" split_words:"true"`
		Levels    []string      `yaml:"levels" split_words:"true"`
	} `yaml:"collector"`
}

type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled" split_words:"true"`
	Path          string        `yaml:"path" split_words:"true"`
	SlowThreshold time.Duration `yaml:"slow_threshold" split_words:"true"`
}

type CORSConfig struct {
	Enabled      bool     `yaml:"enabled" split_words:"true"`
	AllowOrigins []string `yaml:"allow_origins" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" split_words:"true"`
	RPS     float64       `yaml:"rps" split_words:"true"`
	Burst   int           `yaml:"burst" split_words:"true"`
	IdleTTL time.Duration `yaml:"idle_ttl" split_words:"true"`
}

type MarketDataConfig struct {
	BaseURL       string        `yaml:"base_url" split_words:"true"`
	Timeout       time.Duration `yaml:"timeout" split_words:"true"`
	RetryAttempts int           `yaml:"retry_attempts" split_words:"true"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" split_words:"true"`
	UserAgent     string        `yaml:"user_agent" split_words:"true"`
	QuoteEnabled  bool          `yaml:"quote_enabled" split_words:"true"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" split_words:"true"` // none | memory | redis | layered
	HistoryTTL    time.Duration `yaml:"history_ttl" split_words:"true"`
	ProfileTTL    time.Duration `yaml:"profile_ttl" split_words:"true"`
	MemoryMaxSize int           `yaml:"memory_max_size" split_words:"true"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" split_words:"true"`
	Redis         struct {
		Host     string `yaml:"host" split_words:"true"`
		Port     int    `yaml:"port" split_words:"true"`
		Password string `yaml:"password" split_words:"true"`
		DB       int    `yaml:"db" split_words:"true"`
		PoolSize int    `yaml:"pool_size" split_words:"true"`
	} `yaml:"redis"`
}

type ForecastConfig struct {
	Strategy string        `yaml:"strategy" split_words:"true"` // trend | sequence
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
	Trend    struct {
		Horizon int `yaml:"horizon" split_words:"true"`
	} `yaml:"trend"`
	Sequence SequenceConfig `yaml:"sequence"`
}

type SequenceConfig struct {
	Features      []string `yaml:"features" split_words:"true"`
	Target        string   `yaml:"target" split_words:"true"`
	NSteps        int      `yaml:"n_steps" split_words:"true"`
	TrainFraction float64  `yaml:"train_fraction" split_words:"true"`
	HiddenUnits   int      `yaml:"hidden_units" split_words:"true"`
	Epochs        int      `yaml:"epochs" split_words:"true"`
	BatchSize     int      `yaml:"batch_size" split_words:"true"`
	LearningRate  float64  `yaml:"learning_rate" split_words:"true"`
	FeatureScaler string   `yaml:"feature_scaler" split_words:"true"`
	TargetScaler  string   `yaml:"target_scaler" split_words:"true"`
	Seed          int64    `yaml:"seed" split_words:"true"`
}

type ReportConfig struct {
	RecentHistory int `yaml:"recent_history" split_words:"true"`
}

type JournalConfig struct {
	Backend string `yaml:"backend" split_words:"true"` // none | sqlite | clickhouse
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" split_words:"true"`
	Port             int           `yaml:"port" split_words:"true"`
	Database         string        `yaml:"database" split_words:"true"`
	User             string        `yaml:"user" split_words:"true"`
	Password         string        `yaml:"password" split_words:"true"`
	UseHTTP          bool          `yaml:"use_http" split_words:"true"`
	AsyncInsert      bool          `yaml:"async_insert" split_words:"true"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" split_words:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" split_words:"true"`
	ReadTimeout      time.Duration `yaml:"read_timeout" split_words:"true"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" split_words:"true"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path" split_words:"true"`
	BusyTimeout time.Duration `yaml:"busy_timeout" split_words:"true"`
	Synchronous string        `yaml:"synchronous" split_words:"true"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled" split_words:"true"`
	Brokers      []string `yaml:"brokers" split_words:"true"`
	EventsTopic  string   `yaml:"events_topic" split_words:"true"`
	JobsTopic    string   `yaml:"jobs_topic" split_words:"true"`
	RequiredAcks int      `yaml:"required_acks" split_words:"true"`
	Compression  string   `yaml:"compression" split_words:"true"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" split_words:"true"`
		Linger       time.Duration `yaml:"linger" split_words:"true"`
		BatchBytes   int           `yaml:"batch_bytes" split_words:"true"`
		BatchSize    int           `yaml:"batch_size" split_words:"true"`
		WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
		ReadTimeout  time.Duration `yaml:"read_timeout" split_words:"true"`
		Async        bool          `yaml:"async" split_words:"true"`
		AutoCreate   bool          `yaml:"auto_create_topics" split_words:"true"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled       bool          `yaml:"enabled" split_words:"true"`
		GroupID       string        `yaml:"group_id" split_words:"true"`
		Workers       int           `yaml:"workers" split_words:"true"`
		BufferSize    int           `yaml:"buffer_size" split_words:"true"`
		RetryMax      int           `yaml:"retry_max" split_words:"true"`
		BackoffMin    time.Duration `yaml:"backoff_min" split_words:"true"`
		BackoffMax    time.Duration `yaml:"backoff_max" split_words:"true"`
		HandleTimeout time.Duration `yaml:"handle_timeout" split_words:"true"`
		DLQTopic      string        `yaml:"dlq_topic" split_words:"true"`
		MinBytes      int           `yaml:"min_bytes" split_words:"true"`
		MaxBytes      int           `yaml:"max_bytes" split_words:"true"`
	} `yaml:"consumer"`
}

// Default returns a configuration that runs locally with no external
// infrastructure: memory cache, no journal, Kafka off.
func Default() *Config {
	c := &Config{Environment: "development"}

	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 2 * time.Minute
	c.Server.ShutdownTimeout = 15 * time.Second

	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.Output = "stdout"
	c.Log.Collector.Topic = "fincast.logs"
	c.Log.Collector.Interval = 30 * time.Second
	c.Log.Collector.Threshold = 100
	c.Log.Collector.Levels = []string{"error"}

	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Metrics.SlowThreshold = 5 * time.Second

	c.CORS.Enabled = true
	c.CORS.AllowOrigins = []string{"*"}

	c.RateLimit.RPS = 2
	c.RateLimit.Burst = 5
	c.RateLimit.IdleTTL = 10 * time.Minute

	c.MarketData.BaseURL = "https://query1.finance.yahoo.com"
	c.MarketData.Timeout = 10 * time.Second
	c.MarketData.RetryAttempts = 3
	c.MarketData.RetryBackoff = 500 * time.Millisecond
	c.MarketData.UserAgent = "Mozilla/5.0 (compatible; FinCast/1.0)"
	c.MarketData.QuoteEnabled = true

	c.Cache.Backend = "memory"
	c.Cache.HistoryTTL = 15 * time.Minute
	c.Cache.ProfileTTL = time.Hour
	c.Cache.MemoryMaxSize = 1000
	c.Cache.MemoryTTL = 5 * time.Minute
	c.Cache.Redis.Host = "localhost"
	c.Cache.Redis.Port = 6379
	c.Cache.Redis.PoolSize = 10

	c.Forecast.Strategy = "trend"
	c.Forecast.Timeout = 90 * time.Second
	c.Forecast.Trend.Horizon = 5
	c.Forecast.Sequence = SequenceConfig{
		Features:      []string{"open", "high", "low"},
		Target:        "close",
		NSteps:        2,
		TrainFraction: 0.8,
		HiddenUnits:   32,
		Epochs:        50,
		BatchSize:     4,
		LearningRate:  0.001,
		FeatureScaler: "minmax",
		TargetScaler:  "standard",
	}

	c.Report.RecentHistory = 0

	c.Journal.Backend = "none"

	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "fincast"
	c.ClickHouse.User = "default"
	c.ClickHouse.DialTimeout = 5 * time.Second
	c.ClickHouse.ReadTimeout = 10 * time.Second

	c.SQLite.Path = "data/fincast.db"
	c.SQLite.BusyTimeout = 5 * time.Second
	c.SQLite.Synchronous = "NORMAL"

	c.Kafka.Brokers = []string{"localhost:9092"}
	c.Kafka.EventsTopic = "fincast.forecasts"
	c.Kafka.JobsTopic = "fincast.jobs"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Producer.MaxAttempts = 3
	c.Kafka.Producer.Linger = 50 * time.Millisecond
	c.Kafka.Producer.BatchBytes = 1 << 20
	c.Kafka.Producer.BatchSize = 100
	c.Kafka.Producer.WriteTimeout = 10 * time.Second
	c.Kafka.Producer.ReadTimeout = 10 * time.Second
	c.Kafka.Consumer.GroupID = "fincast-workers"
	c.Kafka.Consumer.Workers = 2
	c.Kafka.Consumer.BufferSize = 16
	c.Kafka.Consumer.RetryMax = 2
	c.Kafka.Consumer.BackoffMin = 200 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 5 * time.Second
	c.Kafka.Consumer.HandleTimeout = 2 * time.Minute
	c.Kafka.Consumer.DLQTopic = "fincast.jobs.dlq"
	c.Kafka.Consumer.MinBytes = 1
	c.Kafka.Consumer.MaxBytes = 10e6

	return c
}

// Load reads a YAML file over Default. A missing file is an error.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads YAML, then applies an optional .env file and FINCAST_*
// environment variables on top. Variables already set in the environment win
// over .env entries.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("marketdata.base_url is required")
	}
	if c.MarketData.RetryAttempts < 1 {
		return fmt.Errorf("marketdata.retry_attempts must be >= 1")
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be none, memory, redis or layered, got '%s'", c.Cache.Backend)
	}
	switch c.Forecast.Strategy {
	case "trend", "sequence":
	default:
		return fmt.Errorf("forecast.strategy must be 'trend' or 'sequence', got '%s'", c.Forecast.Strategy)
	}
	if c.Forecast.Trend.Horizon < 1 {
		return fmt.Errorf("forecast.trend.horizon must be >= 1")
	}
	if c.Report.RecentHistory < 0 {
		return fmt.Errorf("report.recent_history must be >= 0")
	}
	switch c.Journal.Backend {
	case "none":
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for journal.backend=sqlite")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for journal.backend=clickhouse")
		}
	default:
		return fmt.Errorf("journal.backend must be none, sqlite or clickhouse, got '%s'", c.Journal.Backend)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty")
		}
		if c.Kafka.EventsTopic == "" {
			return fmt.Errorf("kafka.events_topic is required")
		}
		if c.Kafka.Consumer.Enabled && c.Kafka.JobsTopic == "" {
			return fmt.Errorf("kafka.jobs_topic is required when the consumer is enabled")
		}
		switch c.Kafka.Compression {
		case "gzip", "snappy", "lz4", "zstd":
		default:
			return fmt.Errorf("kafka.compression %q: want gzip, snappy, lz4 or zstd", c.Kafka.Compression)
		}
	}
	if c.Log.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collector requires kafka.enabled")
	}
	return nil
}
