// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Ranking, Encoder, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// Index kinds accepted by IndexConfig.Kind.
const (
	IndexForward  = "forward"
	IndexInverted = "inverted"
)

// IndexConfig selects the index variant and its vocabulary parameters.
type IndexConfig struct {
	Kind        string  `yaml:"kind"`
	VisualWords int     `yaml:"visualWords"`
	CutoffRatio float64 `yaml:"cutoffRatio"`
}

// Ranker kinds accepted by RankingConfig.Ranker.
const (
	RankerSimple    = "simple"
	RankerWeighting = "weighting"
)

// RankingConfig selects the ranker, its comparator, and result limits.
type RankingConfig struct {
	Ranker       string `yaml:"ranker"`
	Comparator   string `yaml:"comparator"`
	DefaultLimit int    `yaml:"defaultLimit"`
	MaxResults   int    `yaml:"maxResults"`
	Workers      int    `yaml:"workers"`
}

// EncoderConfig points at the remote bag-of-visual-words encoder. An empty
// URL disables the raw-image endpoints.
type EncoderConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. Persistence is
// optional and disabled unless Enabled is set.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ImageIngest string `yaml:"imageIngest"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RateLimitConfig bounds API request throughput per client address.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the index or ranker cannot be built from.
func (c *Config) Validate() error {
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: server.maxBodyBytes must be positive, got %d", apperrors.ErrInvalidInput, c.Server.MaxBodyBytes)
	}
	if c.Index.VisualWords <= 0 {
		return fmt.Errorf("%w: index.visualWords must be positive, got %d", apperrors.ErrInvalidInput, c.Index.VisualWords)
	}
	if c.Index.CutoffRatio < 0 {
		return fmt.Errorf("%w: index.cutoffRatio must not be negative, got %g", apperrors.ErrInvalidInput, c.Index.CutoffRatio)
	}
	switch c.Index.Kind {
	case IndexForward, IndexInverted:
	default:
		return fmt.Errorf("%w: unknown index.kind %q", apperrors.ErrInvalidInput, c.Index.Kind)
	}
	switch c.Ranking.Ranker {
	case RankerSimple, RankerWeighting:
	default:
		return fmt.Errorf("%w: unknown ranking.ranker %q", apperrors.ErrInvalidInput, c.Ranking.Ranker)
	}
	if _, err := comparator.ByName(c.Ranking.Comparator); err != nil {
		return fmt.Errorf("ranking.comparator: %w", err)
	}
	if c.Ranking.DefaultLimit <= 0 || c.Ranking.MaxResults < c.Ranking.DefaultLimit {
		return fmt.Errorf("%w: ranking limits must satisfy 0 < defaultLimit <= maxResults", apperrors.ErrInvalidInput)
	}
	return nil
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    16 << 20,
		},
		Index: IndexConfig{
			Kind:        IndexInverted,
			VisualWords: 1000,
			CutoffRatio: 2.0,
		},
		Ranking: RankingConfig{
			Ranker:       RankerWeighting,
			Comparator:   "intersection",
			DefaultLimit: 1,
			MaxResults:   100,
			Workers:      4,
		},
		Encoder: EncoderConfig{
			Timeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "visualsearch",
			User:            "visualsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "visualsearch-indexer",
			Topics: KafkaTopics{
				ImageIngest: "image-ingest",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads VSE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("VSE_SERVER_PORT", &cfg.Server.Port)
	setString("VSE_INDEX_KIND", &cfg.Index.Kind)
	setInt("VSE_INDEX_VISUAL_WORDS", &cfg.Index.VisualWords)
	if v := os.Getenv("VSE_INDEX_CUTOFF_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Index.CutoffRatio = f
		}
	}
	setString("VSE_RANKING_RANKER", &cfg.Ranking.Ranker)
	setString("VSE_RANKING_COMPARATOR", &cfg.Ranking.Comparator)
	setInt("VSE_RANKING_WORKERS", &cfg.Ranking.Workers)
	setString("VSE_ENCODER_URL", &cfg.Encoder.URL)
	setBool("VSE_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("VSE_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("VSE_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("VSE_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("VSE_POSTGRES_USER", &cfg.Postgres.User)
	setString("VSE_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("VSE_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("VSE_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("VSE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("VSE_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("VSE_REDIS_ADDR", &cfg.Redis.Addr)
	setString("VSE_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("VSE_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("VSE_LOGGING_FORMAT", &cfg.Logging.Format)
}
