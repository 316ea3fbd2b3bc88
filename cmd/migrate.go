package cmd

import (
	"fmt"

	"catalog-reconciler/core/config"
	"catalog-reconciler/core/database"
	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCmd creates or updates the tables.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		l, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := store.New(db).Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		l.Info("Database migrated", zap.String("driver", cfg.Database.Driver), zap.Int("tables", len(models.All())))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
