package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hubconnect/internal/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random encryption passphrase",
	Long: `Print a random passphrase suitable for encryption.passphrase.
Changing the passphrase makes every stored credential unreadable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := crypto.GeneratePassphrase()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), passphrase)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
