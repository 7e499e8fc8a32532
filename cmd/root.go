package cmd

import (
	"os"

	"example.com/backstage/services/charity/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "charity",
		Short: "Charity events service",
		Long: `Charity events service for publishing events with volunteer, supply and money demands.

Functions:
- Serve the HTTP API for events, demands, responses, search and donations
- Run the scheduled lifecycle jobs: closing expired events, volunteer reminders,
  the new events digest and the search projection refresh
- Migrate the database schema and seed reference data`,
		SilenceUsage: true,
	}
)

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yaml or app.env")

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads the configuration and sets up logging from it
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Environment == "development" || cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if os.Getenv("LOG_LEVEL") == "" {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	return cfg, nil
}
