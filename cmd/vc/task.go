package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage checklist tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list <item-id>",
	Short: "List a checklist's tasks in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			tasks, err := v.DB.TasksByItem(ctx, args[0])
			if err != nil {
				return err
			}
			for _, t := range tasks {
				printTask(t)
			}
			return nil
		})
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add <item-id> <title>",
	Short: "Add a task to a checklist",
	Long: `Add a task to a checklist item. By default it goes to the end of the
list; --position inserts it elsewhere and shifts the rest down.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			in := types.NewTask{ItemID: args[0], Title: args[1]}
			if cmd.Flags().Changed("position") {
				pos, _ := cmd.Flags().GetInt("position")
				in.Position = &pos
			}
			t, err := v.DB.CreateTask(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (position %d)\n", ui.Pass("Added"), t.Title, t.Position)
			fmt.Println(ui.Muted(t.ID))
			return nil
		})
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			t, err := v.DB.SetTaskDone(ctx, args[0], true)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Done"), t.Title)
			return nil
		})
	},
}

var taskUndoneCmd = &cobra.Command{
	Use:   "undone <task-id>",
	Short: "Mark a task as not done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			t, err := v.DB.SetTaskDone(ctx, args[0], false)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Pass("Reopened"), t.Title)
			return nil
		})
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Retitle or reposition a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			var upd types.TaskUpdate
			if cmd.Flags().Changed("title") {
				s, _ := cmd.Flags().GetString("title")
				upd.Title = &s
			}
			if cmd.Flags().Changed("position") {
				pos, _ := cmd.Flags().GetInt("position")
				upd.Position = &pos
			}
			t, err := v.DB.UpdateTask(ctx, args[0], upd)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (position %d)\n", ui.Pass("Updated"), t.Title, t.Position)
			return nil
		})
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and its attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if err := v.DeleteTask(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.Pass("Deleted"))
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().Int("position", 0, "insert at this position (0-based)")
	taskUpdateCmd.Flags().String("title", "", "new title")
	taskUpdateCmd.Flags().Int("position", 0, "move to this position (0-based)")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskUndoneCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
