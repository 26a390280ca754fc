// Package cmdutil provides helpers shared by dittoserve subcommands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marmos91/dittoserve/internal/cli/output"
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/apiclient"
	"github.com/marmos91/dittoserve/pkg/config"
)

// ClientFlags are the flags of commands that talk to a running server.
type ClientFlags struct {
	APIAddr string
	Output  string
	NoColor bool
}

// Register adds the client flags to cmd.
func (f *ClientFlags) Register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.APIAddr, "api", "", "admin API address (default: from config, else 127.0.0.1:8081)")
	cmd.PersistentFlags().StringVarP(&f.Output, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.PersistentFlags().BoolVar(&f.NoColor, "no-color", false, "Disable colored output")
}

// Client returns an API client for --api, falling back to the address in
// the configuration file named by --config.
func (f *ClientFlags) Client(cmd *cobra.Command) *apiclient.Client {
	if f.APIAddr != "" {
		return apiclient.New(f.APIAddr)
	}
	return apiclient.New(ConfiguredAPIAddr(cmd))
}

// Printer returns a printer for --output writing to cmd's stdout.
func (f *ClientFlags) Printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(f.Output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, !f.NoColor && IsTerminal(cmd.OutOrStdout())), nil
}

// ConfiguredAPIAddr reads the admin API address from the configuration.
// Unreadable configuration falls back to the default address.
func ConfiguredAPIAddr(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.GetDefaultConfig().API.Addr()
	}
	return cfg.API.Addr()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// YesNo renders b for tables.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
