package cmdutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoserve/internal/cli/output"
	"github.com/marmos91/dittoserve/pkg/config"
)

func newCmd(t *testing.T, configPath string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Set("config", configPath))
	return cmd
}

func TestConfiguredAPIAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := config.GetDefaultConfig()
	cfg.Server.Root = dir
	cfg.API.Port = 9191
	require.NoError(t, config.SaveConfig(cfg, path))

	assert.Equal(t, "127.0.0.1:9191", ConfiguredAPIAddr(newCmd(t, path)))

	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	assert.Equal(t, "127.0.0.1:8081", ConfiguredAPIAddr(newCmd(t, path)))
}

func TestClientFlags(t *testing.T) {
	f := &ClientFlags{APIAddr: "10.0.0.1:9000", Output: "json"}
	cmd := newCmd(t, "")

	assert.Equal(t, "http://10.0.0.1:9000", f.Client(cmd).BaseURL())

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	p, err := f.Printer(cmd)
	require.NoError(t, err)
	assert.Equal(t, output.FormatJSON, p.Format())

	f.Output = "csv"
	_, err = f.Printer(cmd)
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestYesNo(t *testing.T) {
	assert.Equal(t, "yes", YesNo(true))
	assert.Equal(t, "no", YesNo(false))
}
