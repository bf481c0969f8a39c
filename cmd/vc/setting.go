package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcraft/vaultcraft/internal/ui"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read and write vault settings",
}

var settingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			settings, err := v.DB.Settings(ctx)
			if err != nil {
				return err
			}
			for _, s := range settings {
				fmt.Printf("%-20s %s\n", ui.Accent(s.Key), s.Value)
			}
			return nil
		})
	},
}

var settingGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			s, err := v.DB.Setting(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(s.Value)
			return nil
		})
	},
}

var settingSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *vault.Vault) error {
			if err := v.DB.SetSetting(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s %s = %s\n", ui.Pass("Set"), args[0], args[1])
			return nil
		})
	},
}

func init() {
	settingCmd.AddCommand(settingListCmd)
	settingCmd.AddCommand(settingGetCmd)
	settingCmd.AddCommand(settingSetCmd)
	rootCmd.AddCommand(settingCmd)
}
