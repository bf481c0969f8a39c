package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/backup"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

func progressPrinter(cmd *cobra.Command) backup.Progress {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	return func(step string) {
		fmt.Println(ui.Muted("  " + step))
	}
}

var backupCmd = &cobra.Command{
	Use:   "backup [dest]",
	Short: "Create a verified full backup",
	Long: `Write the whole vault (database and attachments) to a single archive
with a manifest of checksums. Without a destination the archive goes to the
configured backup directory under a timestamped name.

Example usage:
  vc backup
  vc backup /mnt/usb/vault.zip`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			dest := ""
			if len(args) == 1 {
				dest = args[0]
			} else {
				dest = filepath.Join(cfg.BackupDir, backup.ArchiveName(time.Now()))
			}
			if err := v.CreateBackup(ctx, dest, progressPrinter(cmd)); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Backup written:"), dest)
			return nil
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Verify a backup archive's integrity",
	Long: `Check every checksum in a backup archive against its contents without
touching the vault.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := backup.Verify(args[0], progressPrinter(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.Pass("Archive OK:"), args[0])
		fmt.Printf("  Created:     %s\n", m.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Folders:     %d\n", m.FolderCount)
		fmt.Printf("  Items:       %d\n", m.ItemCount)
		fmt.Printf("  Attachments: %d\n", m.AttachmentCount)
		fmt.Printf("  Total size:  %s\n", humanBytes(m.TotalBytes))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Replace the vault's contents with a backup",
	Long: `Restore the vault from a backup archive. The archive is fully verified
first; a snapshot of the current state is written under the vault's
snapshots directory before anything is replaced.

This replaces EVERYTHING in the vault. Use --yes to skip the confirmation
prompt in scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title("Replace the entire vault with this backup?").
					Description("A safety snapshot of the current state will be kept.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return nil
			}
		}
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if err := v.RestoreBackup(ctx, args[0], progressPrinter(cmd)); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Vault restored from"), args[0])
			return nil
		})
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the vault database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if err := v.DB.Vacuum(ctx); err != nil {
				return err
			}
			fmt.Println(ui.Pass("Database compacted"))
			return nil
		})
	},
}

func init() {
	restoreCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(vacuumCmd)
}
