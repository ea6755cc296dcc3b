// Package config loads server configuration from a config file and
// SHIPTRACK_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Gmail      GmailConfig      `mapstructure:"gmail"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Heuristics HeuristicsConfig `mapstructure:"heuristics"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type GmailConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RefreshToken string        `mapstructure:"refresh_token"`
	Lookback     time.Duration `mapstructure:"lookback"`
	MaxResults   int64         `mapstructure:"max_results"`
}

type GeminiConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	MaxPerMinute    int           `mapstructure:"max_per_minute"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	MaxFailures     int           `mapstructure:"max_failures"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
}

// Enabled reports whether generative extraction is configured at all.
func (g GeminiConfig) Enabled() bool { return g.APIKey != "" }

type HeuristicsConfig struct {
	PrefilterMinMatches int `mapstructure:"prefilter_min_matches"`
	DeliveredAfterDays  int `mapstructure:"delivered_after_days"`
	InTransitAfterDays  int `mapstructure:"in_transit_after_days"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "./shipments.db")
	v.SetDefault("logging.level", "info")

	// Credential keys default to empty so environment overrides are
	// visible to Unmarshal.
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.refresh_token", "")
	v.SetDefault("gmail.lookback", 14*24*time.Hour)
	v.SetDefault("gmail.max_results", 100)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.max_output_tokens", 1024)
	v.SetDefault("gemini.max_per_minute", 12)
	v.SetDefault("gemini.min_interval", 2*time.Second)
	v.SetDefault("gemini.max_failures", 5)
	v.SetDefault("gemini.cooldown", 10*time.Minute)
	v.SetDefault("gemini.max_content_chars", 4000)

	v.SetDefault("heuristics.prefilter_min_matches", 2)
	v.SetDefault("heuristics.delivered_after_days", 14)
	v.SetDefault("heuristics.in_transit_after_days", 7)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", 6*time.Hour)
}

// Load reads configuration from the given file (optional; "" skips the
// file entirely) layered under SHIPTRACK_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHIPTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Heuristics.PrefilterMinMatches < 1 {
		return fmt.Errorf("heuristics.prefilter_min_matches must be at least 1")
	}
	if c.Heuristics.InTransitAfterDays >= c.Heuristics.DeliveredAfterDays {
		return fmt.Errorf("heuristics.in_transit_after_days must be below delivered_after_days")
	}
	return nil
}

// AgeDays converts the configured day thresholds into durations for the
// status inferencer.
func (c *Config) AgeDelivered() time.Duration {
	return time.Duration(c.Heuristics.DeliveredAfterDays) * 24 * time.Hour
}

func (c *Config) AgeInTransit() time.Duration {
	return time.Duration(c.Heuristics.InTransitAfterDays) * 24 * time.Hour
}
