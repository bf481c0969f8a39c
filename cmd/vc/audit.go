package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long: `List audit log entries, newest first. The log records every mutation
and every backup, restore, export, and import, including failures.

Example usage:
  vc audit
  vc audit --event delete --limit 20
  vc audit --entity item --id <item-id>
  vc audit --since 2026-08-01T00:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		event, _ := cmd.Flags().GetString("event")
		entity, _ := cmd.Flags().GetString("entity")
		entityID, _ := cmd.Flags().GetString("id")
		since, _ := cmd.Flags().GetString("since")
		until, _ := cmd.Flags().GetString("until")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filters := types.AuditFilters{
			Event:      event,
			EntityType: entity,
			EntityID:   entityID,
			Limit:      limit,
			Offset:     offset,
		}
		if since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			filters.From = &t
		}
		if until != "" {
			t, err := time.Parse(time.RFC3339, until)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			filters.To = &t
		}

		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			entries, err := v.DB.ListAudit(ctx, filters)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No matching entries.")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-8s %-10s %s",
					e.CreatedAt.Format(time.RFC3339), e.Event, e.EntityType, e.EntityID)
				if e.Event == types.EventError {
					line = ui.Err(line)
				}
				fmt.Println(line)
				if e.Details != "" {
					fmt.Println(ui.Muted("    " + e.Details))
				}
			}
			return nil
		})
	},
}

func init() {
	auditCmd.Flags().String("event", "", "filter by event (create, update, delete, backup, ...)")
	auditCmd.Flags().String("entity", "", "filter by entity type (folder, item, tag, ...)")
	auditCmd.Flags().String("id", "", "filter by entity id")
	auditCmd.Flags().String("since", "", "only entries at or after this RFC3339 time")
	auditCmd.Flags().String("until", "", "only entries at or before this RFC3339 time")
	auditCmd.Flags().Int("limit", 0, "maximum entries (default 100)")
	auditCmd.Flags().Int("offset", 0, "skip this many entries")

	rootCmd.AddCommand(auditCmd)
}
