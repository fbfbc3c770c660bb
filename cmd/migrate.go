package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hubconnect/config"
	"hubconnect/internal/backend"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("Running database migrations", zap.String("database", cfg.Database.Type))
		if err := backend.NewServer(cfg, logger, debug).RunMigrations(); err != nil {
			return err
		}
		logger.Info("Database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
