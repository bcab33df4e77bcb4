package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scraper:
  navigation_timeout_seconds: 40
  wait_timeout_seconds: 20
  detail_timeout_seconds: 12
  default_max_pages: 3
runner:
  max_concurrent_jobs: 0
driver:
  kind: ChromeDP
  user_agent: real-agent
headless:
  max_parallel: 3
politeness:
  requests_per_second: 0.5
  burst: 1
snapshots:
  backend: gcs
  gcs_bucket: bucket
  prefix: diag
archive:
  dsn: postgres://localhost/vacancies
pubsub:
  project_id: proj
  topic_name: jobs-completed
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, DriverChromedp, cfg.Driver.Kind)
	require.Equal(t, "real-agent", cfg.Driver.UserAgent)
	require.Equal(t, 3, cfg.Headless.MaxParallel)
	require.Zero(t, cfg.Runner.MaxConcurrentJobs)
	require.Equal(t, 3, cfg.Scraper.DefaultMaxPages)
	require.InDelta(t, 0.5, cfg.Politeness.RequestsPerSecond, 1e-9)
	require.Equal(t, SnapshotsGCS, cfg.Snapshots.Backend)
	require.Equal(t, "job_archive", cfg.Archive.JobsTable)
	require.False(t, cfg.Logging.Development)

	timeouts := cfg.Timeouts()
	require.Equal(t, 40*time.Second, timeouts.Navigation)
	require.Equal(t, 20*time.Second, timeouts.Wait)
	require.Equal(t, 12*time.Second, timeouts.Detail)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, DriverHTTP, cfg.Driver.Kind)
	require.Equal(t, 4, cfg.Runner.MaxConcurrentJobs)
	require.Equal(t, SnapshotsNone, cfg.Snapshots.Backend)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout())
	require.Equal(t, 1024, cfg.Progress.BufferSize)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	t.Parallel()

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Scraper:   ScraperConfig{NavigationTimeoutSeconds: 1, WaitTimeoutSeconds: 1, DetailTimeoutSeconds: 1},
		Driver:    DriverConfig{Kind: DriverHTTP},
		HTTP:      HTTPConfig{TimeoutSeconds: 10},
		Snapshots: SnapshotsConfig{Backend: SnapshotsNone},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "zero wait", mutate: func(c *Config) { c.Scraper.WaitTimeoutSeconds = 0 }, want: "scraper timeouts"},
		{name: "negative pages", mutate: func(c *Config) { c.Scraper.DefaultMaxPages = -1 }, want: "scraper.default_max_pages"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Runner.MaxConcurrentJobs = -1 }, want: "runner.max_concurrent_jobs"},
		{name: "unknown driver", mutate: func(c *Config) { c.Driver.Kind = "selenium" }, want: "driver.kind"},
		{name: "http timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{
			name: "chromedp parallel",
			mutate: func(c *Config) {
				c.Driver.Kind = DriverChromedp
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{name: "local dir", mutate: func(c *Config) { c.Snapshots = SnapshotsConfig{Backend: SnapshotsLocal} }, want: "snapshots.local_dir"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Snapshots = SnapshotsConfig{Backend: SnapshotsGCS} }, want: "snapshots.gcs_bucket"},
		{name: "pubsub project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
