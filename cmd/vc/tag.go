package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			tags, err := v.DB.Tags(ctx)
			if err != nil {
				return err
			}
			for _, t := range tags {
				fmt.Printf("%s %s\n  %s\n", ui.Accent("#"+t.Name), ui.Muted(t.Color), ui.Muted(t.ID))
			}
			return nil
		})
	},
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tag",
	Long: `Create a tag. Tag names are unique ignoring case.

Example usage:
  vc tag create urgent --color "#ef4444"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			t, err := v.DB.CreateTag(ctx, types.NewTag{Name: args[0], Color: color})
			if err != nil {
				return err
			}
			fmt.Printf("%s #%s\n", ui.Pass("Created"), t.Name)
			fmt.Println(ui.Muted(t.ID))
			return nil
		})
	},
}

var tagUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename or recolor a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		color, _ := cmd.Flags().GetString("color")
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			t, err := v.DB.UpdateTag(ctx, args[0], types.NewTag{Name: name, Color: color})
			if err != nil {
				return err
			}
			fmt.Printf("%s #%s\n", ui.Pass("Updated"), t.Name)
			return nil
		})
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tag (items keep their other tags)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if err := v.DB.DeleteTag(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.Pass("Deleted"))
			return nil
		})
	},
}

var tagAttachCmd = &cobra.Command{
	Use:   "attach <item-id> <tag-name>",
	Short: "Attach a tag to an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			tag, err := v.DB.TagByName(ctx, args[1])
			if err != nil {
				return err
			}
			if err := v.DB.AttachTag(ctx, args[0], tag.ID); err != nil {
				return err
			}
			fmt.Printf("%s #%s\n", ui.Pass("Attached"), tag.Name)
			return nil
		})
	},
}

var tagDetachCmd = &cobra.Command{
	Use:   "detach <item-id> <tag-name>",
	Short: "Detach a tag from an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			tag, err := v.DB.TagByName(ctx, args[1])
			if err != nil {
				return err
			}
			if err := v.DB.DetachTag(ctx, args[0], tag.ID); err != nil {
				return err
			}
			fmt.Printf("%s #%s\n", ui.Pass("Detached"), tag.Name)
			return nil
		})
	},
}

func init() {
	tagCreateCmd.Flags().String("color", "", "hex color (default "+types.DefaultTagColor+")")
	tagUpdateCmd.Flags().String("name", "", "new name")
	tagUpdateCmd.Flags().String("color", "", "new hex color")

	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagCreateCmd)
	tagCmd.AddCommand(tagUpdateCmd)
	tagCmd.AddCommand(tagDeleteCmd)
	tagCmd.AddCommand(tagAttachCmd)
	tagCmd.AddCommand(tagDetachCmd)
	rootCmd.AddCommand(tagCmd)
}
