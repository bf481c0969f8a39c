package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Manage file attachments",
}

var attachAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Attach a file to an item or a checklist task",
	Long: `Copy a file into the vault's attachment store and record it against
an item or a checklist task. The original file is not touched.

Example usage:
  vc attach add invoice.pdf --item <item-id>
  vc attach add receipt.jpg --task <task-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, _ := cmd.Flags().GetString("item")
		taskID, _ := cmd.Flags().GetString("task")
		if (itemID == "") == (taskID == "") {
			return fmt.Errorf("specify exactly one of --item or --task")
		}
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			var a types.Attachment
			var err error
			if itemID != "" {
				a, err = v.AttachFile(ctx, itemID, args[0])
			} else {
				a, err = v.AttachFileToTask(ctx, taskID, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (%s, %s)\n", ui.Pass("Attached"), a.Filename, a.MIME, humanBytes(a.Size))
			fmt.Println(ui.Muted(a.ID))
			return nil
		})
	},
}

var attachGetCmd = &cobra.Command{
	Use:   "get <attachment-id>",
	Short: "Copy an attachment out of the vault",
	Long: `Copy an attachment's contents to a local file. Without --out the file
keeps its original name in the current directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			src, rec, err := v.OpenAttachment(ctx, args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			dest := out
			if dest == "" {
				dest = rec.Filename
			}
			if err := os.MkdirAll(filepath.Dir(filepath.Clean(dest)), 0755); err != nil {
				return err
			}
			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			_, err = io.Copy(f, src)
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Wrote"), dest)
			return nil
		})
	},
}

var attachDeleteCmd = &cobra.Command{
	Use:   "delete <attachment-id>",
	Short: "Delete an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if err := v.DeleteAttachment(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.Pass("Deleted"))
			return nil
		})
	},
}

func init() {
	attachAddCmd.Flags().String("item", "", "item id to attach to")
	attachAddCmd.Flags().String("task", "", "checklist task id to attach to")
	attachGetCmd.Flags().String("out", "", "destination path")

	attachCmd.AddCommand(attachAddCmd)
	attachCmd.AddCommand(attachGetCmd)
	attachCmd.AddCommand(attachDeleteCmd)
	rootCmd.AddCommand(attachCmd)
}
