package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/supportdesk/backend/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "supportdesk",
	Short:         "Customer support desk backend: chats, assignment and QC ratings",
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, userCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "supportdesk").Logger()
	return cfg, logger, nil
}
