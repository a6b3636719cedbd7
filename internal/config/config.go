// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Semantic SemanticConfig `mapstructure:"semantic"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HarvestConfig governs the search pipeline.
type HarvestConfig struct {
	// Strategies lists strategy names in failover priority order.
	Strategies       []string `mapstructure:"strategies"`
	Concurrency      int      `mapstructure:"concurrency"`
	QueueDepth       int      `mapstructure:"queue_depth"`
	PageSize         int      `mapstructure:"page_size"`
	MaxOffset        int      `mapstructure:"max_offset"`
	CooldownSeconds  int      `mapstructure:"cooldown_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	RetryBaseSeconds int      `mapstructure:"retry_base_seconds"`
	UserAgents       []string `mapstructure:"user_agents"`
	ScreenshotDir    string   `mapstructure:"screenshot_dir"`
}

// ProxyConfig configures the rotating proxy used by the stealthier
// strategies.
type ProxyConfig struct {
	// URL is the proxy endpoint, e.g. socks5://127.0.0.1:9050.
	URL string `mapstructure:"url"`
	// ControlAddr is the Tor control port for circuit rotation.
	ControlAddr     string `mapstructure:"control_addr"`
	ControlPassword string `mapstructure:"control_password"`
}

// SemanticConfig configures the LLM screening pass.
type SemanticConfig struct {
	APIKey    string  `mapstructure:"api_key"`
	Model     string  `mapstructure:"model"`
	BatchSize int     `mapstructure:"batch_size"`
	Threshold float64 `mapstructure:"threshold"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	JobsTable   string `mapstructure:"jobs_table"`
	PapersTable string `mapstructure:"papers_table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// StorageConfig selects where export artifacts land.
type StorageConfig struct {
	// Backend is "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SMTPConfig holds mail notification settings.
type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("harvest.strategies", []string{"colly", "direct", "browser"})
	v.SetDefault("harvest.concurrency", 2)
	v.SetDefault("harvest.queue_depth", 64)
	v.SetDefault("harvest.page_size", 10)
	v.SetDefault("harvest.max_offset", 990)
	v.SetDefault("harvest.cooldown_seconds", 10)
	v.SetDefault("harvest.max_retries", 5)
	v.SetDefault("harvest.retry_base_seconds", 10)
	v.SetDefault("semantic.model", "gpt-4o-mini")
	v.SetDefault("semantic.batch_size", 20)
	v.SetDefault("semantic.threshold", 0.5)
	v.SetDefault("db.jobs_table", "jobs")
	v.SetDefault("db.papers_table", "papers")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "./artifacts")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

var knownStrategies = map[string]struct{}{
	"colly":   {},
	"direct":  {},
	"browser": {},
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if len(c.Harvest.Strategies) == 0 {
		return fmt.Errorf("harvest.strategies must name at least one strategy")
	}
	for _, name := range c.Harvest.Strategies {
		if _, ok := knownStrategies[name]; !ok {
			return fmt.Errorf("unknown strategy %q", name)
		}
	}
	if c.Harvest.PageSize <= 0 {
		return fmt.Errorf("harvest.page_size must be > 0")
	}
	if c.Harvest.MaxOffset <= 0 {
		return fmt.Errorf("harvest.max_offset must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be local or gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for gcs backend")
	}
	return nil
}

// Cooldown returns the failover cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Harvest.CooldownSeconds) * time.Second
}

// RetryBaseDelay returns the base retry delay as a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Harvest.RetryBaseSeconds) * time.Second
}
