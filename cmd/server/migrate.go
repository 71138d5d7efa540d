package main

import (
	"github.com/spf13/cobra"

	"github.com/example/marketplace/internal/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Connect(cmd.Context(), cfg.DatabaseURL, database.Options{Verbose: opts.Verbose}, log)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}

			log.Info("schema migrated")
			return nil
		},
	}
}
