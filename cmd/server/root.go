package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/config"
)

type rootOptions struct {
	Verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCommand(&serveOptions{rootOptions: opts})

	// The bare binary serves.
	cmd := &cobra.Command{
		Use:           "marketplace",
		Short:         "Marketplace API server",
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging and SQL tracing")
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

// setup loads configuration and builds the process logger.
func setup(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	var log *zap.Logger
	if cfg.IsDevelopment() || opts.Verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
