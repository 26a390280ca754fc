// Package cache implements the cache subcommands, which operate on a
// running server through its admin API.
package cache

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoserve/cmd/dittoserve/cmdutil"
	"github.com/marmos91/dittoserve/internal/cli/output"
	"github.com/marmos91/dittoserve/internal/cli/prompt"
	"github.com/marmos91/dittoserve/pkg/bufcache"
)

var flags cmdutil.ClientFlags

// Cmd is the cache subcommand.
var Cmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and invalidate the file cache of a running server",
}

var (
	purgeForce     bool
	evictRecursive bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached file",
	Args:  cobra.NoArgs,
	RunE:  runPurge,
}

var evictCmd = &cobra.Command{
	Use:   "evict PATH",
	Short: "Drop the cached copy of one file",
	Long: `Drop the cached copy of the file served at PATH, a request path such as
/docs/index.html. With --recursive every file below PATH is dropped too.

Examples:
  dittoserve cache evict /index.html
  dittoserve cache evict /assets --recursive`,
	Args: cobra.ExactArgs(1),
	RunE: runEvict,
}

func init() {
	flags.Register(Cmd)
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "Do not ask for confirmation")
	evictCmd.Flags().BoolVarP(&evictRecursive, "recursive", "R", false, "Also drop entries below PATH")

	Cmd.AddCommand(statsCmd, purgeCmd, evictCmd)
}

// statsView renders cache statistics for humans.
type statsView struct {
	*bufcache.Stats
}

func (v statsView) pairs() [][2]string {
	hitRate := "-"
	if lookups := v.Hits + v.Misses; lookups > 0 {
		hitRate = fmt.Sprintf("%.1f%%", 100*float64(v.Hits)/float64(lookups))
	}
	return [][2]string{
		{"Entries", humanize.Comma(int64(v.Entries))},
		{"Enabled", humanize.Comma(int64(v.Enabled))},
		{"Loading", humanize.Comma(int64(v.Reserved))},
		{"Used", fmt.Sprintf("%s of %s", humanize.IBytes(v.UsedBytes), humanize.IBytes(v.CapacityBytes))},
		{"Slice size", humanize.IBytes(uint64(v.SliceSize))},
		{"Hit rate", hitRate},
		{"Evictions", humanize.Comma(int64(v.Evictions))},
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	printer, err := flags.Printer(cmd)
	if err != nil {
		return err
	}
	st, err := flags.Client(cmd).CacheStats()
	if err != nil {
		return err
	}
	if printer.Format() == output.FormatTable {
		return output.KeyValues(cmd.OutOrStdout(), statsView{st}.pairs())
	}
	return printer.Print(st)
}

func runPurge(cmd *cobra.Command, args []string) error {
	printer, err := flags.Printer(cmd)
	if err != nil {
		return err
	}

	ok, err := prompt.Confirm("Drop every cached file?", purgeForce)
	if err != nil {
		if prompt.IsAborted(err) {
			printer.Warning("Aborted.")
			return nil
		}
		return err
	}
	if !ok {
		printer.Warning("Aborted.")
		return nil
	}

	n, err := flags.Client(cmd).PurgeCache()
	if err != nil {
		return err
	}
	if printer.Format() == output.FormatTable {
		printer.Success(fmt.Sprintf("Purged %d cache entries", n))
		return nil
	}
	return printer.Print(map[string]int{"removed": n})
}

func runEvict(cmd *cobra.Command, args []string) error {
	printer, err := flags.Printer(cmd)
	if err != nil {
		return err
	}
	res, err := flags.Client(cmd).EvictEntry(args[0], evictRecursive)
	if err != nil {
		return err
	}
	if printer.Format() != output.FormatTable {
		return printer.Print(res)
	}
	if res.Removed == 0 {
		printer.Warning(fmt.Sprintf("%s was not cached", res.Path))
		return nil
	}
	printer.Success(fmt.Sprintf("Evicted %d cache entries for %s", res.Removed, res.Path))
	return nil
}
