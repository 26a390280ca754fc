package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoserve/cmd/dittoserve/cmdutil"
	"github.com/marmos91/dittoserve/internal/cli/timeutil"
)

var statusFlags cmdutil.ClientFlags

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Query the admin API of a running server and report whether it is
serving.

Examples:
  dittoserve status
  dittoserve status --api 127.0.0.1:9081 --output json`,
	RunE: runStatus,
}

func init() {
	statusFlags.Register(statusCmd)
}

// ServerStatus is the result of the status command.
type ServerStatus struct {
	API          string `json:"api" yaml:"api"`
	Running      bool   `json:"running" yaml:"running"`
	Ready        bool   `json:"ready" yaml:"ready"`
	Message      string `json:"message" yaml:"message"`
	StartedAt    string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime       string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	CacheEnabled bool   `json:"cache_enabled" yaml:"cache_enabled"`
}

func (s ServerStatus) Headers() []string { return []string{"Field", "Value"} }

func (s ServerStatus) Rows() [][]string {
	rows := [][]string{
		{"API", s.API},
		{"Running", cmdutil.YesNo(s.Running)},
		{"Ready", cmdutil.YesNo(s.Ready)},
		{"Status", s.Message},
	}
	if s.Running {
		rows = append(rows,
			[]string{"Started", timeutil.FormatTime(s.StartedAt)},
			[]string{"Uptime", s.Uptime},
			[]string{"Cache", cmdutil.YesNo(s.CacheEnabled)},
		)
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := statusFlags.Printer(cmd)
	if err != nil {
		return err
	}
	client := statusFlags.Client(cmd)

	status := ServerStatus{API: client.BaseURL(), Message: "Server is not running"}

	h, err := client.Health()
	if err == nil {
		status.Running = true
		status.StartedAt = h.Info.StartedAt
		status.Uptime = timeutil.FormatUptime(time.Duration(h.Info.UptimeSec) * time.Second)
		status.CacheEnabled = h.Info.CacheEnabled
		status.Message = "Server is starting"

		if _, err := client.Ready(); err == nil {
			status.Ready = true
			status.Message = "Server is running and serving files"
		}
	}

	return printer.Print(status)
}
