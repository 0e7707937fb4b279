// Package config extends the core configuration with the storefront sections.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/paperbot/core/config"
	coredatabase "github.com/m3rciful/paperbot/core/database"
	tgsender "github.com/m3rciful/paperbot/core/telegram/sender"
	"github.com/m3rciful/paperbot/storefront/delivery"
)

// StorefrontConfig points the bot at the storefront backend.
type StorefrontConfig struct {
	APIBaseURL            string `yaml:"api_base_url" envconfig:"STOREFRONT_API_BASE_URL"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" envconfig:"STOREFRONT_REQUEST_TIMEOUT_SECONDS"`
	TopUpAmounts          []int  `yaml:"topup_amounts" envconfig:"STOREFRONT_TOPUP_AMOUNTS"`
	Greeting              string `yaml:"greeting" envconfig:"STOREFRONT_GREETING"`
	// PopupTTLMinutes bounds how long an unanswered popup stays actionable.
	PopupTTLMinutes int `yaml:"popup_ttl_minutes" envconfig:"STOREFRONT_POPUP_TTL_MINUTES"`
}

// PaymentsConfig controls Telegram Stars payment handling.
type PaymentsConfig struct {
	AutoAcceptCheckout bool `yaml:"auto_accept_checkout" envconfig:"PAYMENTS_AUTO_ACCEPT_CHECKOUT"`
}

// DispatcherConfig tunes the outbound worker pool.
type DispatcherConfig struct {
	QueueSize          int `yaml:"queue_size" envconfig:"DISPATCHER_QUEUE_SIZE"`
	Workers            int `yaml:"workers" envconfig:"DISPATCHER_WORKERS"`
	MaxRetries         int `yaml:"max_retries" envconfig:"DISPATCHER_MAX_RETRIES"`
	RetryBackoffMS     int `yaml:"retry_backoff_ms" envconfig:"DISPATCHER_RETRY_BACKOFF_MS"`
	MaxDurationSeconds int `yaml:"max_duration_seconds" envconfig:"DISPATCHER_MAX_DURATION_SECONDS"`
}

// Options converts the section into dispatcher options. Zero values fall
// back to the dispatcher defaults.
func (d DispatcherConfig) Options() tgsender.Options {
	return tgsender.Options{
		QueueSize:    d.QueueSize,
		Workers:      d.Workers,
		MaxRetries:   d.MaxRetries,
		RetryBackoff: time.Duration(d.RetryBackoffMS) * time.Millisecond,
		MaxDuration:  time.Duration(d.MaxDurationSeconds) * time.Second,
	}
}

// DatabaseConfig wraps the core database settings with an on/off switch.
type DatabaseConfig struct {
	Enabled             bool `yaml:"enabled" envconfig:"DB_ENABLED"`
	coredatabase.Config `yaml:",inline"`
}

// AppConfig is the full paperbot configuration.
type AppConfig struct {
	coreconfig.Config `yaml:",inline"`

	Storefront StorefrontConfig `yaml:"storefront"`
	Delivery   delivery.Config  `yaml:"delivery"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Database   DatabaseConfig   `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *AppConfig) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// RequestTimeout returns the storefront API timeout.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Storefront.RequestTimeoutSeconds) * time.Second
}

// PopupTTL returns the popup lifetime; zero selects the bridge default.
func (c *AppConfig) PopupTTL() time.Duration {
	return time.Duration(c.Storefront.PopupTTLMinutes) * time.Minute
}

// NeedsDatabase reports whether postgres must be connected at startup.
func (c *AppConfig) NeedsDatabase() bool {
	return c.Database.Enabled || c.Delivery.Sink == delivery.SinkPostgres
}

var defaultTopUps = []int{50, 100, 250, 500}

// Load reads the YAML file at path and overlays environment variables.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := coreconfig.LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func Normalize(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	sf := &cfg.Storefront
	sf.APIBaseURL = strings.TrimSpace(sf.APIBaseURL)
	if sf.APIBaseURL == "" {
		return fmt.Errorf("storefront.api_base_url is required")
	}
	u, err := url.Parse(sf.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("storefront.api_base_url must be an absolute http(s) url, got %q", sf.APIBaseURL)
	}
	if sf.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("storefront.request_timeout_seconds must be >= 0")
	}
	if sf.RequestTimeoutSeconds == 0 {
		sf.RequestTimeoutSeconds = 15
	}
	if sf.PopupTTLMinutes < 0 {
		return fmt.Errorf("storefront.popup_ttl_minutes must be >= 0")
	}
	if len(sf.TopUpAmounts) == 0 {
		sf.TopUpAmounts = append([]int(nil), defaultTopUps...)
	}
	for _, a := range sf.TopUpAmounts {
		if a <= 0 {
			return fmt.Errorf("storefront.topup_amounts must be positive, got %d", a)
		}
	}

	if err := cfg.Delivery.Normalize(); err != nil {
		return err
	}

	if cfg.NeedsDatabase() {
		cfg.Database.Enabled = true
		if err := cfg.Database.Config.Normalize(); err != nil {
			return err
		}
	}
	return nil
}
