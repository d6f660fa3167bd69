package main

import (
	"errors"

	"github.com/spf13/cobra"

	"uniid/internal/platform/config"
	"uniid/internal/platform/logger"
	"uniid/internal/platform/postgres"
)

func newMigrateCmd(cfg *config.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger.New(cfg.LogFormat)

			db, err := postgres.Open(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("DATABASE_URL is not set")
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			log.InfoContext(ctx, "schema applied")
			return nil
		},
	}
}
