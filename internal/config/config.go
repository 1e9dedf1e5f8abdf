// Package config loads and validates admission service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/policy/conditions"
	"github.com/JakeFAU/crawl-admission/internal/scanindex"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Conditions ConditionsConfig `mapstructure:"conditions"`
	Domains    DomainsConfig    `mapstructure:"domains"`
	ScanIndex  ScanIndexConfig  `mapstructure:"scan_index"`
	Store      StoreConfig      `mapstructure:"store"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Source     SourceConfig     `mapstructure:"source"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RateLimitRPS throttles /v1 per client; 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// AdmissionConfig governs the engine and its worker pool.
type AdmissionConfig struct {
	RefetchDays int `mapstructure:"refetch_days"`
	Concurrency int `mapstructure:"concurrency"`
	QueueDepth  int `mapstructure:"queue_depth"`
	MaxDepth    int `mapstructure:"max_depth"`
}

// ConditionsConfig selects the built-in fetch conditions, in order.
type ConditionsConfig struct {
	Enabled        []string `mapstructure:"enabled"`
	AllowedSchemes []string `mapstructure:"allowed_schemes"`
	SkipExtensions []string `mapstructure:"skip_extensions"`
}

// DomainsConfig holds the allow and deny lists, inline or as files.
type DomainsConfig struct {
	Allow              []string `mapstructure:"allow"`
	Deny               []string `mapstructure:"deny"`
	AllowFile          string   `mapstructure:"allow_file"`
	DenyFile           string   `mapstructure:"deny_file"`
	RequireRegistrable bool     `mapstructure:"require_registrable"`
}

// ScanIndexConfig picks the process-local dedup index.
type ScanIndexConfig struct {
	Kind              string  `mapstructure:"kind"`
	ExpectedItems     uint    `mapstructure:"expected_items"`
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"`
}

// StoreConfig selects the eligibility store driver.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	QueueTable             string `mapstructure:"queue_table"`
	StatsTable             string `mapstructure:"stats_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// RedisConfig configures the redis eligibility store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PubSubConfig holds metadata for "queue item added" notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SourceConfig resolves relative list and seed paths.
type SourceConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// SeedConfig points at the seed domain list.
type SeedConfig struct {
	File string `mapstructure:"file"`
}

// ProgressConfig tunes the outcome broadcast hub.
type ProgressConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	LogOutcomes    bool `mapstructure:"log_outcomes"`
	HostStats      bool `mapstructure:"host_stats"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	Exporter       string  `mapstructure:"exporter"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("admission.refetch_days", 7)
	v.SetDefault("admission.concurrency", 4)
	v.SetDefault("admission.queue_depth", 256)
	v.SetDefault("admission.max_depth", 0)
	v.SetDefault("conditions.enabled", []string{conditions.NameAllowedSchemes})
	v.SetDefault("conditions.allowed_schemes", []string{"http", "https"})
	v.SetDefault("domains.require_registrable", true)
	v.SetDefault("scan_index.kind", scanindex.KindExact)
	v.SetDefault("scan_index.expected_items", 1_000_000)
	v.SetDefault("scan_index.false_positive_rate", 0.001)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("db.queue_table", "queue_items")
	v.SetDefault("db.stats_table", "host_stats")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "admission:")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.log_outcomes", true)
	v.SetDefault("progress.host_stats", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "crawl-admission")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.exporter", "none")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return errors.New("server rate limit values must be >= 0")
	}
	if c.Admission.RefetchDays < 0 {
		return errors.New("admission.refetch_days must be >= 0")
	}
	if c.Admission.Concurrency <= 0 {
		return errors.New("admission.concurrency must be > 0")
	}
	if c.Admission.QueueDepth < 0 {
		return errors.New("admission.queue_depth must be >= 0")
	}
	if c.Admission.MaxDepth < 0 {
		return errors.New("admission.max_depth must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	switch c.ScanIndex.Kind {
	case "", scanindex.KindExact:
	case scanindex.KindBloom:
		if c.ScanIndex.ExpectedItems == 0 {
			return errors.New("scan_index.expected_items must be > 0 for bloom")
		}
		if c.ScanIndex.FalsePositiveRate <= 0 || c.ScanIndex.FalsePositiveRate >= 1 {
			return errors.New("scan_index.false_positive_rate must be in (0,1)")
		}
	default:
		return fmt.Errorf("scan_index.kind %q is not supported", c.ScanIndex.Kind)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.DB.DSN == "" {
			return errors.New("db.dsn must be set for the postgres store")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr must be set for the redis store")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be in [0,1]")
	}
	return nil
}

// RefetchCooldown converts refetch_days into a duration.
func (c Config) RefetchCooldown() time.Duration {
	return time.Duration(c.Admission.RefetchDays) * 24 * time.Hour
}

// Settings returns the read-only crawl context handed to fetch conditions.
func (c Config) Settings() crawler.Settings {
	return crawler.Settings{
		RefetchCooldown: c.RefetchCooldown(),
		MaxDepth:        c.Admission.MaxDepth,
		Concurrency:     c.Admission.Concurrency,
	}
}

// ConditionsFilterConfig maps the conditions section onto the filter builder.
func (c Config) ConditionsFilterConfig() conditions.Config {
	return conditions.Config{
		Enabled:        c.Conditions.Enabled,
		AllowedSchemes: c.Conditions.AllowedSchemes,
		SkipExtensions: c.Conditions.SkipExtensions,
	}
}

// ScanIndexSettings maps the scan_index section onto the index builder.
func (c Config) ScanIndexSettings() scanindex.Config {
	return scanindex.Config{
		Kind:              c.ScanIndex.Kind,
		ExpectedItems:     c.ScanIndex.ExpectedItems,
		FalsePositiveRate: c.ScanIndex.FalsePositiveRate,
	}
}

// MaxBatchWait converts progress.max_batch_wait_ms into a duration.
func (c Config) MaxBatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}
