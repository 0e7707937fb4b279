package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/paperbot/core/config"
	"github.com/m3rciful/paperbot/core/logger"
	coretelegram "github.com/m3rciful/paperbot/core/telegram"
)

// ConfigCarrier exposes the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is what Run needs from an assembled bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app and run it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	// Bootstrap receives the signal-aware context so slow startup steps
	// (waiting for postgres, dialing brokers) stop on SIGTERM.
	Bootstrap func(ctx context.Context, cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// ConfigPath resolves the config file from env, then def.
func ConfigPath(env, def string) (string, error) {
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if def == "" {
		return "", fmt.Errorf("cmd: config path not provided via %s", env)
	}
	return def, nil
}

// Run loads configuration, bootstraps the app and blocks until the bot stops
// or a shutdown signal arrives.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return errors.New("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return errors.New("cmd: Bootstrap is required")
	}

	cfgPath, err := ConfigPath(opts.ConfigEnvVar, opts.DefaultConfigPath)
	if err != nil {
		return err
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	wrapLifecycle(&runOpts, startedAt)

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func wrapLifecycle(runOpts *coretelegram.RunOptions, startedAt time.Time) {
	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.Duration("startup_duration", time.Since(startedAt)),
		)
		return nil
	}

	prevStop := runOpts.OnStop
	runOpts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if prevStop != nil {
			return prevStop(ctx, rt)
		}
		return nil
	}
}
