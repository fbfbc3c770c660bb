package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hubconnect/config"
	"hubconnect/internal/backend"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the users integrations are connected for",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Register a user and print its id",
	Long: `Register a user by email and print the id to send as the acting user.
Running it again for the same email prints the existing id.`,
	Args: cobra.ExactArgs(1),
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

		user, created, err := backend.NewServer(cfg, logger, debug).EnsureUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		status := "existing"
		if created {
			status = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", user.ID, user.Email, status)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
