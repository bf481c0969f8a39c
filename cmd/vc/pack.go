package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/pack"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var exportCmd = &cobra.Command{
	Use:   "export <folder-id> [dest]",
	Short: "Export a folder subtree to a portable package",
	Long: `Write a folder, its subfolders, items, tags, and attachments to a
package archive that can be imported into another vault. Without a
destination the archive goes to the configured backup directory.

Example usage:
  vc export <folder-id>
  vc export <folder-id> archive-car.zip`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			folder, err := v.DB.FolderByID(ctx, args[0])
			if err != nil {
				return err
			}
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			} else {
				dest = filepath.Join(cfg.BackupDir, pack.ArchiveName(folder.Name, time.Now()))
			}
			if err := v.ExportPackage(ctx, folder.ID, dest); err != nil {
				return err
			}
			fmt.Printf("%s %s -> %s\n", ui.Pass("Exported"), folder.Path, dest)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <archive>",
	Short: "Import a package into the vault",
	Long: `Merge a package archive into the vault under the given parent folder
(or the vault root). Existing folders with matching names are reused; items
whose titles collide get an " (imported)" suffix; tags are matched by name.
Nothing already in the vault is modified or overwritten.

Example usage:
  vc import archive-car.zip
  vc import archive-car.zip --into <folder-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		into, _ := cmd.Flags().GetString("into")
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title("Import this package into the vault?").
					Description("Existing content is never overwritten; collisions are renamed.").
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
			var parentID *string
			if into != "" {
				parentID = &into
			}
			result, err := v.ImportPackage(ctx, args[0], parentID)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d folders created, %d reused; %d items (%d renamed); %d attachments\n",
				ui.Pass("Imported:"),
				result.FoldersCreated, result.FoldersReused,
				result.ItemsCreated, result.ItemsRenamed,
				result.AttachmentsCopied)
			return nil
		})
	},
}

func init() {
	importCmd.Flags().String("into", "", "destination parent folder id (default vault root)")
	importCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
