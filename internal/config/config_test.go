package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 10, cfg.Crawl.MaxPagesDefault)
	require.Equal(t, 200, cfg.Crawl.MaxPagesLimit)
	require.True(t, cfg.Crawl.SameDomainOnly)
	require.Equal(t, crawler.ModeArchive, cfg.DefaultMode())
	require.Nil(t, cfg.DefaultMaxDepth())
	require.Equal(t, 15*time.Second, cfg.Capture.NavTimeout)
	require.Equal(t, time.Second, cfg.Capture.Settle)
	require.Equal(t, "fonts/NotoSansKR.ttf", cfg.PDF.FontPath)
	require.True(t, cfg.PDF.IncludeTOC)
	require.Equal(t, "gpt-4o-mini", cfg.Summary.Model)
	require.Equal(t, 30000, cfg.Summary.MaxChars)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, "private, max-age=3600", cfg.Storage.CacheControl)
	require.False(t, cfg.Capture.KeepErrorPages)
	require.Equal(t, "captured_pages", cfg.DB.Table)
	require.Equal(t, 1024, cfg.Progress.BufferSize)
	require.Equal(t, 250*time.Millisecond, cfg.Progress.MaxBatchWait)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
crawl:
  max_pages_default: 25
  max_pages_limit: 100
  max_depth_default: 3
  mode_default: fast
capture:
  user_agent: test-agent
  nav_timeout: 30s
  settle: 250ms
  delay: 2s
  max_attempts: 3
  respect_robots: true
pdf:
  font_path: /opt/fonts/custom.ttf
  include_archive: true
summary:
  enabled: true
  api_key: sk-test
  timeout: 90s
worker:
  concurrency: 6
storage:
  backend: local
  base_dir: /tmp/out
db:
  dsn: postgres://localhost/sitepdf
  max_conns: 8
pubsub:
  project_id: proj
  topic_name: artifacts
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 25, cfg.Crawl.MaxPagesDefault)
	require.Equal(t, crawler.ModeFast, cfg.DefaultMode())
	require.NotNil(t, cfg.DefaultMaxDepth())
	require.Equal(t, 3, *cfg.DefaultMaxDepth())
	require.Equal(t, "test-agent", cfg.Capture.UserAgent)
	require.Equal(t, 30*time.Second, cfg.Capture.NavTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Capture.Settle)
	require.Equal(t, 2*time.Second, cfg.Capture.Delay)
	require.Equal(t, 3, cfg.Capture.MaxAttempts)
	require.True(t, cfg.Capture.RespectRobots)
	require.True(t, cfg.PDF.IncludeArchive)
	require.True(t, cfg.Summary.Enabled)
	require.Equal(t, 90*time.Second, cfg.Summary.Timeout)
	require.Equal(t, 6, cfg.Worker.Concurrency)
	require.Equal(t, BackendLocal, cfg.Storage.Backend)
	require.Equal(t, int32(8), cfg.DB.MaxConns)
	require.Equal(t, "artifacts", cfg.PubSub.TopicName)
	require.False(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080},
		Crawl:   CrawlConfig{MaxPagesDefault: 10, MaxPagesLimit: 200, ModeDefault: "archive"},
		Capture: CaptureConfig{NavTimeout: time.Second, MaxAttempts: 1},
		Worker:  WorkerConfig{Concurrency: 1},
		Storage: StorageConfig{Backend: BackendMemory},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"default above limit", func(c *Config) { c.Crawl.MaxPagesDefault = 500 }, "crawl.max_pages_default"},
		{"negative depth", func(c *Config) { c.Crawl.MaxDepthDefault = -1 }, "crawl.max_depth_default"},
		{"unknown mode", func(c *Config) { c.Crawl.ModeDefault = "turbo" }, "crawl.mode_default"},
		{"zero nav timeout", func(c *Config) { c.Capture.NavTimeout = 0 }, "capture.nav_timeout"},
		{"zero attempts", func(c *Config) { c.Capture.MaxAttempts = 0 }, "capture.max_attempts"},
		{"zero workers", func(c *Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"summary without key", func(c *Config) { c.Summary.Enabled = true }, "summary.api_key"},
		{"local without dir", func(c *Config) { c.Storage.Backend = BackendLocal }, "storage.base_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.gcs_bucket"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "t" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
