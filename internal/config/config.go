// Package config loads the application configuration: defaults, an
// optional config file, and VC_-prefixed environment variables, in
// ascending priority. Command-line flags are bound on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	VaultDir    string `mapstructure:"vault_dir"`
	BackupDir   string `mapstructure:"backup_dir"`
	LogFile     string `mapstructure:"log_file"`
	LogMaxSize  int    `mapstructure:"log_max_size"` // megabytes
	LogMaxAge   int    `mapstructure:"log_max_age"`  // days
	LogBackups  int    `mapstructure:"log_backups"`
	DueSoonDays int    `mapstructure:"due_soon_days"`
}

// Load builds the configuration. A missing config file is fine; a present
// but malformed one is an error.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".vaultcraft")

	v.SetDefault("vault_dir", filepath.Join(base, "vault"))
	v.SetDefault("backup_dir", filepath.Join(base, "backups"))
	v.SetDefault("log_file", filepath.Join(base, "vaultcraft.log"))
	v.SetDefault("log_max_size", 10)
	v.SetDefault("log_max_age", 30)
	v.SetDefault("log_backups", 3)
	v.SetDefault("due_soon_days", 7)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(base)
	v.AddConfigPath(".")

	v.SetEnvPrefix("VC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}
