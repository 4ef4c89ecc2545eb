// Package config loads process configuration from environment variables and
// an optional config file, the way cmd/bd in the steveyegge/beads pack layers
// viper over env vars for its daemon settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment input named in spec §6 ("CLI and config").
type Config struct {
	KVAddr     string        `mapstructure:"kv_addr"`
	KVPassword string        `mapstructure:"kv_password"`
	KVDB       int           `mapstructure:"kv_db"`

	DocStoreURL string `mapstructure:"docstore_url"`

	BlobBucket string `mapstructure:"blob_bucket"`

	MailSMTPAddr    string `mapstructure:"mail_smtp_addr"`
	MailFromAddress string `mapstructure:"mail_from_address"`
	MailDomain      string `mapstructure:"mail_domain"`

	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	LeaseTimeout      time.Duration `mapstructure:"lease_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	OptimizerInterval time.Duration `mapstructure:"optimizer_interval"`
	AlertInterval     time.Duration `mapstructure:"alert_interval"`

	// BackoffInitial/BackoffCap parameterize the Scheduler's retry backoff
	// (spec §4.1: exponential, base 1s, cap 30s by default, cap
	// configurable).
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	Debug       bool   `mapstructure:"debug"`
}

// Load resolves configuration from (in increasing priority): defaults,
// an optional config file at path (if non-empty and present), then
// MAILFORGE_-prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("mailforge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("kv_addr", "localhost:6379")
	v.SetDefault("kv_db", 0)
	v.SetDefault("mail_smtp_addr", "localhost:25")
	v.SetDefault("mail_from_address", "no-reply@example.com")
	v.SetDefault("mail_domain", "example.com")
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("lease_timeout", 5*time.Minute)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("optimizer_interval", time.Hour)
	v.SetDefault("alert_interval", 30*time.Second)
	v.SetDefault("backoff_initial", time.Second)
	v.SetDefault("backoff_cap", 30*time.Second)
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("debug", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}
