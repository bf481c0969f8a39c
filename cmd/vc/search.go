package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Full-text search across titles, descriptions, and bodies",
	Long: `Search every item's title, description, and body. Terms match as
prefixes, most relevant results first.

Example usage:
  vc search insurance
  vc search car insurance --kind document
  vc search budget --folder <folder-id> --tag finance`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		folder, _ := cmd.Flags().GetString("folder")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		limit, _ := cmd.Flags().GetInt("limit")

		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			filters := types.SearchFilters{
				Kind:     types.Kind(kind),
				FolderID: folder,
				Limit:    limit,
			}
			for _, name := range tags {
				tag, err := v.DB.TagByName(ctx, name)
				if err != nil {
					return err
				}
				filters.TagIDs = append(filters.TagIDs, tag.ID)
			}
			results, err := v.DB.Search(ctx, strings.Join(args, " "), filters)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, r := range results {
				printItem(r.Item)
			}
			return nil
		})
	},
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List items that are due soon or overdue",
	Long: `List items whose due date has passed or falls within the configured
window (due_soon_days, default 7). Use --days to override.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if !cmd.Flags().Changed("days") {
				days = cfg.DueSoonDays
			}
			cutoff := time.Now().UTC().AddDate(0, 0, days)
			items, err := v.DB.ItemsDueBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("Nothing due.")
				return nil
			}
			for _, it := range items {
				printItem(it)
			}
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().String("kind", "", "restrict to a kind: note, document, or checklist")
	searchCmd.Flags().String("folder", "", "restrict to a folder id")
	searchCmd.Flags().StringSlice("tag", nil, "restrict to items carrying this tag (repeatable)")
	searchCmd.Flags().Int("limit", 0, "maximum results (default 50)")
	dueCmd.Flags().Int("days", 7, "look-ahead window in days")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(dueCmd)
}
