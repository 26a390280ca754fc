// Package commands implements the dittoserve CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoserve/cmd/dittoserve/commands/cache"
	"github.com/marmos91/dittoserve/cmd/dittoserve/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittoserve",
	Short: "dittoserve - caching static file server",
	Long: `dittoserve serves files from a directory over HTTP/1.1. Small files are
kept in a pooled in-memory cache and written straight from it; large files
are streamed from disk.

Use "dittoserve [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittoserve/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(cache.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
