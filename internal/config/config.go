// Package config loads and validates sitepdf configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. SITEPDF_SERVER_PORT.
const EnvPrefix = "SITEPDF"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	PDF      PDFConfig      `mapstructure:"pdf"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// CrawlConfig holds request defaults and hard limits.
type CrawlConfig struct {
	MaxPagesDefault int    `mapstructure:"max_pages_default"`
	MaxPagesLimit   int    `mapstructure:"max_pages_limit"`
	MaxDepthDefault int    `mapstructure:"max_depth_default"`
	SameDomainOnly  bool   `mapstructure:"same_domain_only"`
	ModeDefault     string `mapstructure:"mode_default"`
}

// CaptureConfig configures the page capture backends.
type CaptureConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	Settle         time.Duration `mapstructure:"settle"`
	Delay          time.Duration `mapstructure:"delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	StaticFastMode bool          `mapstructure:"static_fast_mode"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	KeepErrorPages bool          `mapstructure:"keep_error_pages"`
	ChromePath     string        `mapstructure:"chrome_path"`
}

// PDFConfig configures document generation.
type PDFConfig struct {
	FontPath       string `mapstructure:"font_path"`
	IncludeTOC     bool   `mapstructure:"include_toc"`
	IncludeArchive bool   `mapstructure:"include_archive"`
	Outline        bool   `mapstructure:"outline"`
}

// SummaryConfig configures the chat model used for summaries.
type SummaryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// WorkerConfig sizes the asynchronous job pool.
type WorkerConfig struct {
	Concurrency   int  `mapstructure:"concurrency"`
	QueueDepth    int  `mapstructure:"queue_depth"`
	MaxAttempts   int  `mapstructure:"max_attempts"`
	IncludeReport bool `mapstructure:"include_report"`
}

// StorageConfig selects where artifacts are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`

	// CacheControl is applied to GCS uploads.
	CacheControl string `mapstructure:"cache_control"`
}

// DBConfig controls access to the capture catalog database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for artifact notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the live progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name. Empty means debug in development, else info.
	Level string `mapstructure:"level"`
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.max_body_bytes", int64(64<<20))
	v.SetDefault("crawl.max_pages_default", 10)
	v.SetDefault("crawl.max_pages_limit", 200)
	v.SetDefault("crawl.max_depth_default", 0)
	v.SetDefault("crawl.same_domain_only", true)
	v.SetDefault("crawl.mode_default", string(crawler.ModeArchive))
	v.SetDefault("capture.user_agent", "sitepdf-bot/0.1")
	v.SetDefault("capture.nav_timeout", 15*time.Second)
	v.SetDefault("capture.settle", time.Second)
	v.SetDefault("capture.delay", time.Duration(0))
	v.SetDefault("capture.max_attempts", 1)
	v.SetDefault("capture.static_fast_mode", true)
	v.SetDefault("capture.respect_robots", false)
	v.SetDefault("capture.keep_error_pages", false)
	v.SetDefault("capture.chrome_path", "")
	v.SetDefault("pdf.font_path", "fonts/NotoSansKR.ttf")
	v.SetDefault("pdf.include_toc", true)
	v.SetDefault("pdf.include_archive", false)
	v.SetDefault("pdf.outline", true)
	v.SetDefault("summary.enabled", false)
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.base_url", "https://api.openai.com")
	v.SetDefault("summary.model", "gpt-4o-mini")
	v.SetDefault("summary.timeout", 60*time.Second)
	v.SetDefault("summary.max_chars", 30000)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_depth", 16)
	v.SetDefault("worker.max_attempts", 1)
	v.SetDefault("worker.include_report", true)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.base_dir", "artifacts")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "sites")
	v.SetDefault("storage.cache_control", "private, max-age=3600")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "captured_pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.MaxPagesLimit <= 0 {
		return fmt.Errorf("crawl.max_pages_limit must be > 0")
	}
	if c.Crawl.MaxPagesDefault <= 0 || c.Crawl.MaxPagesDefault > c.Crawl.MaxPagesLimit {
		return fmt.Errorf("crawl.max_pages_default must be within 1..%d", c.Crawl.MaxPagesLimit)
	}
	if c.Crawl.MaxDepthDefault < 0 {
		return fmt.Errorf("crawl.max_depth_default must be >= 0")
	}
	if _, err := crawler.ParseMode(c.Crawl.ModeDefault, crawler.ModeArchive); err != nil {
		return fmt.Errorf("crawl.mode_default: %w", err)
	}
	if c.Capture.NavTimeout <= 0 {
		return fmt.Errorf("capture.nav_timeout must be > 0")
	}
	if c.Capture.MaxAttempts <= 0 {
		return fmt.Errorf("capture.max_attempts must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.QueueDepth < 0 {
		return fmt.Errorf("worker.queue_depth must be >= 0")
	}
	if c.Summary.Enabled && c.Summary.APIKey == "" {
		return fmt.Errorf("summary.api_key must be set when summary is enabled")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.Progress.BufferSize < 0 || c.Progress.MaxBatchEvents < 0 {
		return fmt.Errorf("progress buffer and batch sizes must be >= 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// DefaultMode is the configured crawl mode.
func (c Config) DefaultMode() crawler.Mode {
	mode, err := crawler.ParseMode(c.Crawl.ModeDefault, crawler.ModeArchive)
	if err != nil {
		return crawler.ModeArchive
	}
	return mode
}

// DefaultMaxDepth converts max_depth_default to a crawl bound. Zero means
// unbounded.
func (c Config) DefaultMaxDepth() *int {
	if c.Crawl.MaxDepthDefault <= 0 {
		return nil
	}
	return crawler.IntPtr(c.Crawl.MaxDepthDefault)
}
