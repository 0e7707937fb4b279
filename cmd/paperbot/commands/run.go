package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	corebootstrap "github.com/m3rciful/paperbot/core/bootstrap"
	corecmd "github.com/m3rciful/paperbot/core/cmd"
	"github.com/m3rciful/paperbot/storefront/bot"
	"github.com/m3rciful/paperbot/storefront/config"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		Args:  cobra.NoArgs,
		RunE:  runBot,
	}
}

func runBot(_ *cobra.Command, _ []string) error {
	if configPath != "" {
		if err := os.Setenv(configEnvVar, configPath); err != nil {
			return err
		}
	}
	return corecmd.Run(corecmd.Options{
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return bootstrap(ctx, carrier.(*config.AppConfig))
		},
	})
}

func bootstrap(ctx context.Context, cfg *config.AppConfig) (*bot.App, error) {
	res, err := corebootstrap.Run(ctx, corebootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database.Config,
		SkipDatabase: !cfg.NeedsDatabase(),
	})
	if err != nil {
		return nil, err
	}
	app, err := bot.New(ctx, cfg, res.DB)
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, err
	}
	return app, nil
}
