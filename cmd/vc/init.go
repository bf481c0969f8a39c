package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the vault directory",
	Long: `Create the vault directory, its database, and the attachment store,
and bring the schema to the current version. Running init on an existing
vault is safe; it only applies pending migrations.

Example usage:
  vc init
  vc --vault /tmp/demo init`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			stats, err := v.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Vault ready:"), v.Dir)
			fmt.Printf("Schema version %d, %d folders, %d items\n",
				stats.SchemaVersion, stats.Folders, stats.Items)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			stats, err := v.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Vault: %s\n", ui.Accent(v.Dir))
			fmt.Printf("  Schema version: %d\n", stats.SchemaVersion)
			fmt.Printf("  Folders:        %d\n", stats.Folders)
			fmt.Printf("  Items:          %d\n", stats.Items)
			fmt.Printf("  Attachments:    %d\n", stats.Attachments)
			fmt.Printf("  Database size:  %s\n", humanBytes(stats.DatabaseBytes))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
}
