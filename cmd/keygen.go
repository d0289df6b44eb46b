package cmd

import (
	"fmt"

	"ticket-pass/internal/services/qrcode"
	"ticket-pass/security"
	"ticket-pass/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/spf13/cobra"
)

func registerCommands(app *pocketbase.PocketBase) {
	app.RootCmd.AddCommand(keygenCmd(), scannerKeyCmd())
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a QR issuer key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, address, err := qrcode.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SIGNER_PRIVATE_KEY=%s\nSIGNER_PUBLIC=%s\n", key, address.Hex())
			return nil
		},
	}
}

func scannerKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scanner-key [key]",
		Short: "Create a gate scanner key and the hash to put in SCANNER_KEY_HASHES",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				code, err := utils.GenerateCode(16)
				if err != nil {
					return err
				}
				key = code
			}

			hash, err := security.HashScannerKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanner key: %s\nhash: %s\n", key, hash)
			return nil
		},
	}
}
