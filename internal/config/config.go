// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
)

// Driver kinds accepted by driver.kind.
const (
	DriverHTTP     = "http"
	DriverChromedp = "chromedp"
)

// Snapshot backends accepted by snapshots.backend.
const (
	SnapshotsNone   = "none"
	SnapshotsMemory = "memory"
	SnapshotsLocal  = "local"
	SnapshotsGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Driver     DriverConfig     `mapstructure:"driver"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Progress   ProgressConfig   `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig bounds every pipeline wait.
type ScraperConfig struct {
	NavigationTimeoutSeconds int `mapstructure:"navigation_timeout_seconds"`
	WaitTimeoutSeconds       int `mapstructure:"wait_timeout_seconds"`
	DetailTimeoutSeconds     int `mapstructure:"detail_timeout_seconds"`
	// DefaultMaxPages applies to submissions without max_pages; 0 is unbounded.
	DefaultMaxPages int `mapstructure:"default_max_pages"`
}

// RunnerConfig governs job execution.
type RunnerConfig struct {
	MaxConcurrentJobs        int `mapstructure:"max_concurrent_jobs"`
	SideEffectTimeoutSeconds int `mapstructure:"side_effect_timeout_seconds"`
}

// DriverConfig selects the page automation backend.
type DriverConfig struct {
	Kind      string `mapstructure:"kind"`
	UserAgent string `mapstructure:"user_agent"`
}

// HeadlessConfig configures the chromedp driver.
type HeadlessConfig struct {
	MaxParallel             int `mapstructure:"max_parallel"`
	OperationTimeoutSeconds int `mapstructure:"operation_timeout_seconds"`
}

// HTTPConfig configures the colly driver.
type HTTPConfig struct {
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	RespectRobots  bool `mapstructure:"respect_robots"`
}

// PolitenessConfig throttles detail visits per host. A zero rate disables it.
type PolitenessConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// SnapshotsConfig sets where listing boot-failure snapshots go.
type SnapshotsConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ArchiveConfig controls the Postgres job archive and run history. An empty
// DSN disables both.
type ArchiveConfig struct {
	DSN                    string `mapstructure:"dsn"`
	JobsTable              string `mapstructure:"jobs_table"`
	RunsTable              string `mapstructure:"runs_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for job-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize         int  `mapstructure:"buffer_size"`
	BatchSize          int  `mapstructure:"batch_size"`
	BatchWaitMs        int  `mapstructure:"batch_wait_ms"`
	SinkTimeoutSeconds int  `mapstructure:"sink_timeout_seconds"`
	LogEvents          bool `mapstructure:"log_events"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied first; variables already set win.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	cfg.Driver.Kind = strings.ToLower(strings.TrimSpace(cfg.Driver.Kind))
	cfg.Snapshots.Backend = strings.ToLower(strings.TrimSpace(cfg.Snapshots.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv applies a dotenv file without overriding the environment. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("scraper.navigation_timeout_seconds", 25)
	v.SetDefault("scraper.wait_timeout_seconds", 15)
	v.SetDefault("scraper.detail_timeout_seconds", 15)
	v.SetDefault("scraper.default_max_pages", 0)
	v.SetDefault("runner.max_concurrent_jobs", 4)
	v.SetDefault("runner.side_effect_timeout_seconds", 30)
	v.SetDefault("driver.kind", DriverHTTP)
	v.SetDefault("driver.user_agent", "Mozilla/5.0 (X11; Linux x86_64) vacancies-scrapper/0.1")
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.operation_timeout_seconds", 10)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("politeness.requests_per_second", 1.0)
	v.SetDefault("politeness.burst", 2)
	v.SetDefault("snapshots.backend", SnapshotsNone)
	v.SetDefault("snapshots.local_dir", "snapshots")
	v.SetDefault("snapshots.prefix", "")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.jobs_table", "job_archive")
	v.SetDefault("archive.runs_table", "job_runs")
	v.SetDefault("archive.max_conns", 4)
	v.SetDefault("archive.ensure_schema", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_size", 256)
	v.SetDefault("progress.batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_seconds", 10)
	v.SetDefault("progress.log_events", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.NavigationTimeoutSeconds <= 0 || c.Scraper.WaitTimeoutSeconds <= 0 || c.Scraper.DetailTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper timeouts must be > 0")
	}
	if c.Scraper.DefaultMaxPages < 0 {
		return fmt.Errorf("scraper.default_max_pages must be >= 0")
	}
	if c.Runner.MaxConcurrentJobs < 0 {
		return fmt.Errorf("runner.max_concurrent_jobs must be >= 0")
	}
	switch c.Driver.Kind {
	case DriverHTTP:
		if c.HTTP.TimeoutSeconds <= 0 {
			return fmt.Errorf("http.timeout_seconds must be > 0")
		}
	case DriverChromedp:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when driver.kind is chromedp")
		}
	default:
		return fmt.Errorf("driver.kind must be %q or %q, got %q", DriverHTTP, DriverChromedp, c.Driver.Kind)
	}
	if c.Politeness.RequestsPerSecond < 0 {
		return fmt.Errorf("politeness.requests_per_second must be >= 0")
	}
	switch c.Snapshots.Backend {
	case "", SnapshotsNone, SnapshotsMemory:
	case SnapshotsLocal:
		if c.Snapshots.LocalDir == "" {
			return fmt.Errorf("snapshots.local_dir must be set for the local backend")
		}
	case SnapshotsGCS:
		if c.Snapshots.GCSBucket == "" {
			return fmt.Errorf("snapshots.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown snapshots.backend %q", c.Snapshots.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// Timeouts converts the scraper section into pipeline timeouts.
func (c Config) Timeouts() pipeline.Timeouts {
	return pipeline.Timeouts{
		Navigation: seconds(c.Scraper.NavigationTimeoutSeconds),
		Wait:       seconds(c.Scraper.WaitTimeoutSeconds),
		Detail:     seconds(c.Scraper.DetailTimeoutSeconds),
	}
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSeconds)
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return seconds(c.Server.ShutdownTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
