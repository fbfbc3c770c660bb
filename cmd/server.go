package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"hubconnect/config"
	"hubconnect/internal/backend"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the integration API server",
	Long: `Start the hubconnect server which provides:
- HTTP API for connecting and managing integrations
- gRPC health service
- Database persistence of encrypted credentials`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("db-type", "", "Database type: sqlite or postgres (overrides config file)")
	serverCmd.Flags().String("http-listen", "", "HTTP server listen address")
	serverCmd.Flags().String("grpc-listen", "", "gRPC server listen address")

	viper.BindPFlag("database.type", serverCmd.Flags().Lookup("db-type"))
	viper.BindPFlag("server.http_listen", serverCmd.Flags().Lookup("http-listen"))
	viper.BindPFlag("server.grpc_listen", serverCmd.Flags().Lookup("grpc-listen"))
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting hubconnect server",
		zap.String("config_file", viper.ConfigFileUsed()),
		zap.String("http_listen", cfg.Server.HTTPListen),
		zap.String("grpc_listen", cfg.Server.GRPCListen),
		zap.String("database", cfg.Database.Type),
		zap.Strings("oauth_providers", cfg.EnabledProviders()))

	for _, warning := range cfg.SecurityWarnings() {
		logger.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return backend.NewServer(cfg, logger, debug).Start(ctx)
}
