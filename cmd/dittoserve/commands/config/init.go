package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoserve/internal/bytesize"
	"github.com/marmos91/dittoserve/internal/cli/prompt"
	"github.com/marmos91/dittoserve/pkg/config"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file populated with the default settings.

By default the file is created at $XDG_CONFIG_HOME/dittoserve/config.yaml.
Use --config to choose another path and --interactive to answer a few
questions first.

Examples:
  dittoserve config init
  dittoserve config init --interactive
  dittoserve config init --config /etc/dittoserve/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.GetDefaultConfig()
	if initInteractive {
		if err := promptSettings(cfg); err != nil {
			if prompt.IsAborted(err) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return err
		}
	}

	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.InitConfigToPath(path, cfg, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintf(out, "  2. Start the server with: dittoserve start --config %s\n", path)
	return nil
}

func promptSettings(cfg *config.Config) error {
	root, err := prompt.Input("Directory to serve", cfg.Server.Root, func(s string) error {
		info, err := os.Stat(s)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", s)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	cfg.Server.Root = root

	if cfg.Server.Port, err = prompt.InputPort("HTTP port", cfg.Server.Port); err != nil {
		return err
	}

	disable, err := prompt.Confirm("Disable the in-memory file cache?", false)
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = !disable
	if cfg.Cache.Enabled {
		size, err := prompt.Input("Cache size", cfg.Cache.MaxSize.String(), func(s string) error {
			_, err := bytesize.ParseByteSize(s)
			return err
		})
		if err != nil {
			return err
		}
		cfg.Cache.MaxSize, _ = bytesize.ParseByteSize(size)
	}

	level, err := prompt.Select("Log level", []string{"INFO", "DEBUG", "WARN", "ERROR"})
	if err != nil {
		return err
	}
	cfg.Logging.Level = level

	return config.Validate(cfg)
}
