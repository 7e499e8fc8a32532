package cmd

import (
	"context"
	"time"

	"example.com/backstage/services/charity/internal/database"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/search"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Migrate the database schema, seed reference data and create the search index`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, _, err := database.Connect(cfg.DB, metrics.NewMetrics())
		if err != nil {
			return err
		}

		log.Info().Msg("Running database migrations...")
		if err := database.Migrate(db); err != nil {
			return err
		}
		if err := database.Seed(db); err != nil {
			return err
		}
		log.Info().Msg("Database migrations completed successfully")

		if !cfg.Elastic.Enabled {
			return nil
		}
		client, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping search index creation")
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := client.EnsureIndex(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to create search index")
		}
		return nil
	},
}
