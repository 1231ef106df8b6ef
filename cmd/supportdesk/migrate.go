package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/supportdesk/backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		if err := db.MigrateUp(cmd.Context(), cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info().Msg("migrate up: ok")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print applied and pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		return db.MigrateStatus(cmd.Context(), cfg.DatabaseURL)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}
