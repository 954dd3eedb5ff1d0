// Package config loads and validates parser configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Run     RunConfig     `mapstructure:"run"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Source  SourceConfig  `mapstructure:"source"`
	Seen    SeenConfig    `mapstructure:"seen"`
	Status  StatusConfig  `mapstructure:"status"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Events  EventsConfig  `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig toggles zap development features.
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig governs the browser fetcher.
type FetchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MinDelay   time.Duration `mapstructure:"min_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	UserAgents []string      `mapstructure:"user_agents"`
	Headless   bool          `mapstructure:"headless"`
}

// PoolConfig governs worker concurrency and retry behavior.
type PoolConfig struct {
	Workers        int           `mapstructure:"workers"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// RunConfig bounds a whole scraping run.
type RunConfig struct {
	// Deadline caps run duration; zero disables the cap.
	Deadline time.Duration `mapstructure:"deadline"`
	// BatchSize is the outcome count between status heartbeats.
	BatchSize int `mapstructure:"batch_size"`
}

// SinkConfig controls result delivery.
type SinkConfig struct {
	OutputPath string        `mapstructure:"output_path"`
	API        SinkAPIConfig `mapstructure:"api"`
}

// SinkAPIConfig controls the product-card intake client.
type SinkAPIConfig struct {
	URL        string        `mapstructure:"url"`
	Enabled    bool          `mapstructure:"enabled"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// SourceConfig locates the sitemap and the category link files.
type SourceConfig struct {
	SitemapURL string `mapstructure:"sitemap_url"`
	LinksDir   string `mapstructure:"links_dir"`
	// MaxRPS caps sitemap downloads per host. Zero disables pacing.
	MaxRPS float64 `mapstructure:"max_rps"`
}

// SeenConfig locates the processed-URL set.
type SeenConfig struct {
	Path string `mapstructure:"path"`
}

// StatusConfig controls job status persistence.
type StatusConfig struct {
	Dir        string        `mapstructure:"dir"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// StoreConfig selects and configures the product store provider.
type StoreConfig struct {
	Provider string              `mapstructure:"provider"`
	File     FileStoreConfig     `mapstructure:"file"`
	Postgres PostgresStoreConfig `mapstructure:"postgres"`
}

// FileStoreConfig configures the JSON file store.
type FileStoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// PostgresStoreConfig configures the Postgres store.
type PostgresStoreConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects and configures the failed-page archive provider.
type ArchiveConfig struct {
	Provider string             `mapstructure:"provider"`
	Local    LocalArchiveConfig `mapstructure:"local"`
	GCS      GCSArchiveConfig   `mapstructure:"gcs"`
}

// LocalArchiveConfig configures the filesystem archive.
type LocalArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// GCSArchiveConfig configures the Cloud Storage archive.
type GCSArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// EventsConfig selects and configures the run-event publisher.
type EventsConfig struct {
	Provider string             `mapstructure:"provider"`
	Pubsub   PubsubEventsConfig `mapstructure:"pubsub"`
}

// PubsubEventsConfig configures the Pub/Sub publisher.
type PubsubEventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PARSER")
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
	v.SetDefault("server.addr", ":7000")
	v.SetDefault("log.development", true)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.min_delay", time.Second)
	v.SetDefault("fetch.max_delay", 3*time.Second)
	v.SetDefault("fetch.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
	})
	v.SetDefault("fetch.headless", true)
	v.SetDefault("pool.workers", 1)
	v.SetDefault("pool.max_retries", 3)
	v.SetDefault("pool.retry_base_delay", 250*time.Millisecond)
	v.SetDefault("pool.retry_max_delay", 5*time.Second)
	v.SetDefault("run.deadline", time.Duration(0))
	v.SetDefault("run.batch_size", 10)
	v.SetDefault("sink.output_path", "results.json")
	v.SetDefault("sink.api.url", "https://duomind.ru/api/product-card")
	v.SetDefault("sink.api.enabled", true)
	v.SetDefault("sink.api.timeout", 15*time.Second)
	v.SetDefault("sink.api.max_retries", 3)
	v.SetDefault("source.sitemap_url", "https://www.mvideo.ru/sitemap.xml")
	v.SetDefault("source.links_dir", "urls")
	v.SetDefault("source.max_rps", 1.0)
	v.SetDefault("seen.path", "processed_urls.json")
	v.SetDefault("status.dir", "status")
	v.SetDefault("status.stale_after", 2*time.Minute)
	v.SetDefault("store.provider", "file")
	v.SetDefault("store.file.dir", "data")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.local.dir", "failed_pages")
	v.SetDefault("events.provider", "none")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MinDelay < 0 || c.Fetch.MaxDelay < 0 {
		return fmt.Errorf("fetch delays must be >= 0")
	}
	if c.Fetch.MinDelay > c.Fetch.MaxDelay {
		return fmt.Errorf("fetch.min_delay must be <= fetch.max_delay")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}
	if c.Pool.MaxRetries < 0 {
		return fmt.Errorf("pool.max_retries must be >= 0")
	}
	if c.Sink.OutputPath == "" {
		return fmt.Errorf("sink.output_path must be set")
	}
	if c.Sink.API.Enabled && c.Sink.API.URL == "" {
		return fmt.Errorf("sink.api.url must be set when api submission is enabled")
	}
	if c.Source.MaxRPS < 0 {
		return fmt.Errorf("source.max_rps must be >= 0")
	}
	switch c.Store.Provider {
	case "none":
	case "file":
		if c.Store.File.Dir == "" {
			return fmt.Errorf("store.file.dir must be set for the file provider")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case "none", "memory":
	case "local":
		if c.Archive.Local.Dir == "" {
			return fmt.Errorf("archive.local.dir must be set for the local provider")
		}
	case "gcs":
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Events.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Events.Pubsub.ProjectID == "" || c.Events.Pubsub.Topic == "" {
			return fmt.Errorf("events.pubsub.project_id and events.pubsub.topic must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown events.provider %q", c.Events.Provider)
	}
	return nil
}
