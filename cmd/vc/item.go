package main

import (
	"context"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage notes, documents, and checklists",
}

// parseDue accepts either RFC3339 or natural language ("tomorrow 9am",
// "next friday").
func parseDue(input string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC(), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", input, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", input)
	}
	return result.Time.UTC(), nil
}

var itemListCmd = &cobra.Command{
	Use:   "list <folder-id>",
	Short: "List the items in a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			items, err := v.DB.ItemsByFolder(ctx, args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("Folder is empty.")
				return nil
			}
			for _, it := range items {
				printItem(it)
			}
			return nil
		})
	},
}

var itemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an item in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			it, err := v.DB.ItemByID(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", ui.Accent(it.Title), ui.Muted(string(it.Kind)))
			if it.Description != "" {
				fmt.Println(it.Description)
			}
			if it.DueAt != nil {
				fmt.Printf("Due: %s (%s)\n", it.DueAt.Format(time.RFC3339), humanTime(*it.DueAt))
			}
			for _, t := range it.Tags {
				fmt.Print(ui.Muted("#"+t.Name), " ")
			}
			if len(it.Tags) > 0 {
				fmt.Println()
			}
			if it.Body != "" {
				fmt.Println()
				fmt.Println(it.Body)
			}
			if it.Kind == types.KindChecklist {
				tasks, err := v.DB.TasksByItem(ctx, it.ID)
				if err != nil {
					return err
				}
				fmt.Println()
				for _, t := range tasks {
					printTask(t)
				}
			}
			if len(it.Attachments) > 0 {
				fmt.Println()
				for _, a := range it.Attachments {
					printAttachment(a)
				}
			}
			return nil
		})
	},
}

var itemCreateCmd = &cobra.Command{
	Use:   "create <folder-id> <title>",
	Short: "Create an item",
	Long: `Create a note, document, or checklist in a folder.

Example usage:
  vc item create <folder-id> "Meeting notes" --kind note --body "..."
  vc item create <folder-id> "Packing list" --kind checklist --due "next friday"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		description, _ := cmd.Flags().GetString("description")
		body, _ := cmd.Flags().GetString("body")
		due, _ := cmd.Flags().GetString("due")
		tags, _ := cmd.Flags().GetStringSlice("tag")

		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			in := types.NewItem{
				FolderID:    args[0],
				Kind:        types.Kind(kind),
				Title:       args[1],
				Description: description,
				Body:        body,
			}
			if due != "" {
				t, err := parseDue(due)
				if err != nil {
					return err
				}
				in.DueAt = &t
			}
			for _, name := range tags {
				tag, err := v.DB.TagByName(ctx, name)
				if err != nil {
					return fmt.Errorf("unknown tag %q (create it with: vc tag create %q)", name, name)
				}
				in.TagIDs = append(in.TagIDs, tag.ID)
			}
			it, err := v.DB.CreateItem(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Created"), it.Title)
			fmt.Println(ui.Muted(it.ID))
			return nil
		})
	},
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an item",
	Long: `Update an item's fields. Only the flags you pass change; the item's
kind is fixed at creation.

Example usage:
  vc item update <id> --title "New title"
  vc item update <id> --due tomorrow
  vc item update <id> --clear-due
  vc item update <id> --folder <other-folder-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			var upd types.ItemUpdate
			if cmd.Flags().Changed("title") {
				s, _ := cmd.Flags().GetString("title")
				upd.Title = &s
			}
			if cmd.Flags().Changed("description") {
				s, _ := cmd.Flags().GetString("description")
				upd.Description = &s
			}
			if cmd.Flags().Changed("body") {
				s, _ := cmd.Flags().GetString("body")
				upd.Body = &s
			}
			if cmd.Flags().Changed("folder") {
				s, _ := cmd.Flags().GetString("folder")
				upd.FolderID = &s
			}
			if cmd.Flags().Changed("due") {
				s, _ := cmd.Flags().GetString("due")
				t, err := parseDue(s)
				if err != nil {
					return err
				}
				upd.DueAt = &t
			}
			upd.ClearDue, _ = cmd.Flags().GetBool("clear-due")

			it, err := v.DB.UpdateItem(ctx, args[0], upd)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Updated"), it.Title)
			return nil
		})
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item and its attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			it, err := v.DB.ItemByID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := v.DeleteItem(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Deleted"), it.Title)
			return nil
		})
	},
}

func init() {
	itemCreateCmd.Flags().String("kind", "note", "item kind: note, document, or checklist")
	itemCreateCmd.Flags().String("description", "", "short description")
	itemCreateCmd.Flags().String("body", "", "markdown body (notes)")
	itemCreateCmd.Flags().String("due", "", "due date (RFC3339 or natural language)")
	itemCreateCmd.Flags().StringSlice("tag", nil, "tag names to attach (repeatable)")

	itemUpdateCmd.Flags().String("title", "", "new title")
	itemUpdateCmd.Flags().String("description", "", "new description")
	itemUpdateCmd.Flags().String("body", "", "new markdown body")
	itemUpdateCmd.Flags().String("folder", "", "move to this folder id")
	itemUpdateCmd.Flags().String("due", "", "new due date")
	itemUpdateCmd.Flags().Bool("clear-due", false, "remove the due date")

	itemCmd.AddCommand(itemListCmd)
	itemCmd.AddCommand(itemShowCmd)
	itemCmd.AddCommand(itemCreateCmd)
	itemCmd.AddCommand(itemUpdateCmd)
	itemCmd.AddCommand(itemDeleteCmd)
	rootCmd.AddCommand(itemCmd)
}
