// Package config holds the settings every bot built on the core needs:
// Telegram credentials, update delivery, logging and rate limiting.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the bot credentials and update mode.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// 0 selects the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the webhook listener. SecretToken is echoed by
// Telegram in X-Telegram-Bot-Api-Secret-Token and checked on every request.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile is "prod", "dev" or "debug"; dev and debug default to kv output.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by RateLimitConfig.ExcludeUpdates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

var rateLimitKinds = []string{UpdateCallback, UpdateMessage, UpdateInlineQuery}

// RateLimitConfig enforces a minimum interval between updates of one user.
// Payment updates are never limited.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the core sections. Bots embed it inline in their own
// configuration type.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LoadFile decodes the YAML file at path into dst, then overlays environment
// variables. dst must be a pointer to a struct.
func LoadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	return nil
}

// Normalize validates the core sections and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token is required")
	}
	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	return normalizeRateLimit(&cfg.RateLimit)
}

func normalizeRunMode(cfg *Config) error {
	mode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch mode {
	case "", "polling":
		mode = RunModeLongpoll
	}

	switch mode {
	case RunModeWebhook:
		wh := cfg.Webhook
		switch {
		case strings.TrimSpace(wh.URL) == "":
			return errors.New("webhook.url is required in webhook mode")
		case strings.TrimSpace(wh.Listen) == "":
			return errors.New("webhook.listen is required in webhook mode")
		case wh.Port <= 0:
			return errors.New("webhook.port must be > 0 in webhook mode")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = mode
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	if rl.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	kinds := rl.ExcludeUpdates[:0]
	for _, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if !isRateLimitKind(key) {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: %s",
				v, strings.Join(rateLimitKinds, ", "))
		}
		kinds = append(kinds, key)
	}
	rl.ExcludeUpdates = kinds
	return nil
}

func isRateLimitKind(kind string) bool {
	for _, k := range rateLimitKinds {
		if k == kind {
			return true
		}
	}
	return false
}
