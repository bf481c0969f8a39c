package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage the folder tree",
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			folders, err := v.DB.Folders(ctx)
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				fmt.Println("No folders yet. Create one with: vc folder create <name>")
				return nil
			}
			for _, f := range folders {
				printFolder(f)
			}
			return nil
		})
	},
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Long: `Create a folder, optionally inside another folder.

Example usage:
  vc folder create Personal
  vc folder create Finance --parent <folder-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			in := types.NewFolder{Name: args[0]}
			if parent != "" {
				in.ParentID = &parent
			}
			f, err := v.DB.CreateFolder(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Created"), f.Path)
			fmt.Println(ui.Muted(f.ID))
			return nil
		})
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <id> <new-name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			f, err := v.DB.RenameFolder(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Renamed to"), f.Path)
			return nil
		})
	},
}

var folderMoveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Move a folder to a new parent",
	Long: `Move a folder (and everything in it) under another folder, or to the
vault root with --root. Moving a folder into its own subtree is rejected.

Example usage:
  vc folder move <id> --parent <other-folder-id>
  vc folder move <id> --root`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		toRoot, _ := cmd.Flags().GetBool("root")
		if (parent == "") == !toRoot {
			return fmt.Errorf("specify exactly one of --parent or --root")
		}
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			var parentID *string
			if parent != "" {
				parentID = &parent
			}
			f, err := v.DB.MoveFolder(ctx, args[0], parentID)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Moved to"), f.Path)
			return nil
		})
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a folder and everything inside it",
	Long: `Delete a folder, its subfolders, their items, and all attached files.
This cannot be undone; take a backup first if in doubt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			f, err := v.DB.FolderByID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := v.DeleteFolder(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Deleted"), f.Path)
			return nil
		})
	},
}

func init() {
	folderCreateCmd.Flags().String("parent", "", "parent folder id")
	folderMoveCmd.Flags().String("parent", "", "new parent folder id")
	folderMoveCmd.Flags().Bool("root", false, "move to the vault root")

	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderMoveCmd)
	folderCmd.AddCommand(folderDeleteCmd)
	rootCmd.AddCommand(folderCmd)
}
