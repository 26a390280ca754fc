package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoserve/internal/cli/output"
	"github.com/marmos91/dittoserve/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply environment overrides and check every
setting.

Examples:
  dittoserve config validate
  dittoserve config validate --config /etc/dittoserve/config.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if !cfg.Cache.Enabled {
		warnings = append(warnings, "cache disabled - every request reads from disk")
	} else if !cfg.Cache.Watch {
		warnings = append(warnings, "cache.watch disabled - changed files are served stale until purged")
	}
	if cfg.Server.MaxConnections == 0 {
		warnings = append(warnings, "server.max_connections is unlimited")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.KeyValues(out, [][2]string{
		{"Root", cfg.Server.Root},
		{"HTTP port", fmt.Sprint(cfg.Server.Port)},
		{"Cache size", cfg.Cache.MaxSize.String()},
		{"Max cached file", cfg.Cache.MaxFileSize.String()},
		{"Workers", fmt.Sprint(cfg.Workers.Size)},
		{"Admin API", apiSummary(cfg)},
		{"Log level", cfg.Logging.Level},
	})
}

func apiSummary(cfg *config.Config) string {
	if !cfg.API.Enabled {
		return "disabled"
	}
	return cfg.API.Addr()
}
