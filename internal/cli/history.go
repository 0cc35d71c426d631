package cli

import (
	"fmt"
	"io"

	"github.com/harun/craftpilot/pkg/state"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent actions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	if !cfg.Dashboard.Enabled {
		return fmt.Errorf("dashboard is disabled")
	}

	client := newDashboardClient(dashboardAddr(cfg.Dashboard), cfg.Dashboard.Token)
	entries, err := client.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), entries)
	return nil
}

func printHistory(out io.Writer, entries []state.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No actions yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-7s  %-24s  %s\n",
			e.Timestamp.Format("15:04:05"), e.Outcome, e.Action, e.Detail)
	}
}
