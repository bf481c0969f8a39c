package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vaultcraft/vaultcraft/internal/config"
	"github.com/vaultcraft/vaultcraft/internal/logging"
	"github.com/vaultcraft/vaultcraft/internal/vault"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	cfg       config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "vc",
	Short: "vc is a local vault for notes, documents, and checklists",
	Long: `vc manages a local, single-user vault: a folder tree of notes,
documents, and checklists with tags, file attachments, full-text search,
and verified backup/restore.

All data lives under one vault directory (default ~/.vaultcraft/vault),
configurable with --vault, a config file, or VC_VAULT_DIR.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		_ = v.BindPFlag("vault_dir", cmd.Flags().Lookup("vault"))

		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		logCloser, err = logging.Setup(logging.Options{
			File:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSize,
			MaxAgeDays: cfg.LogMaxAge,
			MaxBackups: cfg.LogBackups,
			Verbose:    verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("vault", "", "vault directory (default ~/.vaultcraft/vault)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "mirror log output to stderr")
}

// openVault opens the configured vault for a command. Callers must Close it.
func openVault(ctx context.Context) (*vault.Vault, error) {
	return vault.Open(ctx, cfg.VaultDir, version, logging.For("vault"))
}

// withVault runs fn against an open vault, handling open/close.
func withVault(cmd *cobra.Command, fn func(ctx context.Context, v *vault.Vault) error) error {
	ctx := cmd.Context()
	v, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(ctx, v)
}
