// Package config loads and validates falchooser configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FALCHOOSER_DB_ENGINE.
const EnvPrefix = "FALCHOOSER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	DB          DBConfig          `mapstructure:"db"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	MAL         MALConfig         `mapstructure:"mal"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Titles      TitlesConfig      `mapstructure:"titles"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// DBConfig names the relational store.
type DBConfig struct {
	// Engine is a postgres:// DSN, a sqlite:// path or ":memory:".
	Engine   string `mapstructure:"engine"`
	MaxConns int    `mapstructure:"max_conns"`
}

// CredentialsConfig is the basic auth pair used by the search API.
type CredentialsConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MALConfig locates the site.
type MALConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
}

// TitlesConfig points at the directory holding the season list files.
type TitlesConfig struct {
	Dir string `mapstructure:"dir"`
}

// ArchiveConfig selects where raw statistics pages are kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

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

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("db.engine", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("mal.base_url", "https://myanimelist.net")
	v.SetDefault("http.user_agent", "falchooser/1.0")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_delay_ms", 1000)
	v.SetDefault("titles.dir", "titles")
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("db.max_conns must be >= 0")
	}
	if !strings.HasPrefix(c.MAL.BaseURL, "http://") && !strings.HasPrefix(c.MAL.BaseURL, "https://") {
		return fmt.Errorf("mal.base_url must be an http(s) url")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.RetryDelayMs < 0 {
		return fmt.Errorf("http.retry_delay_ms must be >= 0")
	}
	if strings.TrimSpace(c.Titles.Dir) == "" {
		return fmt.Errorf("titles.dir is required")
	}
	switch strings.ToLower(c.Archive.Backend) {
	case "", "none", "memory":
	case "local":
		if strings.TrimSpace(c.Archive.Dir) == "" {
			return fmt.Errorf("archive.dir is required for the local archive")
		}
	case "gcs":
		if strings.TrimSpace(c.Archive.GCSBucket) == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend must be one of local, gcs, memory")
	}
	return nil
}

// RequireDB reports a missing engine. Commands that touch the store call it.
func (c Config) RequireDB() error {
	if strings.TrimSpace(c.DB.Engine) == "" {
		return fmt.Errorf("db.engine is required (set it in the config file or %s_DB_ENGINE)", EnvPrefix)
	}
	return nil
}

// RequireCredentials reports missing search credentials.
func (c Config) RequireCredentials() error {
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return fmt.Errorf("credentials.username and credentials.password are required for search")
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed pause between fetch attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.HTTP.RetryDelayMs) * time.Millisecond
}
