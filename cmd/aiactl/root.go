package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alpa-strategie/aia-backend/internal/app"
	"github.com/alpa-strategie/aia-backend/pkg/config"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
)

// builder turns a loaded config into a ready pipeline.
type builder func(ctx context.Context, cfg *config.Config) (*app.App, error)

func defaultBuilder(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

type rootOptions struct {
	configFile string
	build      builder
}

func newRootCmd(build builder) *cobra.Command {
	opts := &rootOptions{build: build}

	cmd := &cobra.Command{
		Use:           "aiactl",
		Short:         "Operate the Aïa knowledge index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml or /etc/aia/config.yaml)")

	cmd.AddCommand(reindexCmd(opts))
	cmd.AddCommand(searchCmd(opts))
	cmd.AddCommand(runsCmd(opts))
	cmd.AddCommand(cacheCmd(opts))
	return cmd
}

// open loads configuration and builds the pipeline. The caller closes it.
func (o *rootOptions) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadFrom(viper.New(), o.configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, "stderr"); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return o.build(ctx, cfg)
}
