package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harun/craftpilot/internal/config"
	"github.com/harun/craftpilot/pkg/dashboard"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long: `Show the current status of a running agent. The dashboard is queried
when it is enabled; otherwise only the process state is reported.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status JSON")
	rootCmd.AddCommand(statusCmd)
}

// loadClientConfig loads the config without requiring AI credentials.
func loadClientConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	pidFile := pidFilePath(cfg.DataDir)
	if !cfg.Dashboard.Enabled {
		return printProcessStatus(out, pidFile)
	}

	client := newDashboardClient(dashboardAddr(cfg.Dashboard), cfg.Dashboard.Token)
	status, err := client.Status(cmd.Context())
	if err != nil {
		if !isRunning(pidFile) {
			fmt.Fprintln(out, "Status: stopped")
			return nil
		}
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	printStatus(out, status, time.Now())
	return nil
}

func printProcessStatus(out io.Writer, pidFile string) error {
	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}
	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if age, ok := pidFileAge(pidFile); ok {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(age))
	}
	return nil
}

func printStatus(out io.Writer, s *dashboard.StatusResponse, now time.Time) {
	loop := s.Loop
	fmt.Fprintf(out, "Status: %s\n", loop.Phase)
	if !loop.StartedAt.IsZero() {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(now.Sub(loop.StartedAt)))
	}
	fmt.Fprintf(out, "Cycles: %d (%d failed)\n", loop.Cycles, loop.FailedCycles)
	fmt.Fprintf(out, "Interval: %s\n", loop.Interval)

	w := s.World
	fmt.Fprintf(out, "Position: %.1f, %.1f, %.1f\n", w.Position.X, w.Position.Y, w.Position.Z)
	fmt.Fprintf(out, "Health: %d/20  Hunger: %d/20\n", w.Health, w.Hunger)
	fmt.Fprintf(out, "Phase: %s\n", w.GamePhase)
	if w.CurrentGoal != "" {
		fmt.Fprintf(out, "Goal: %s\n", w.CurrentGoal)
	}

	if loop.LastPlan != nil {
		fmt.Fprintf(out, "Last plan: %s (%s)\n", loop.LastPlan.Action, loop.LastPlan.Source)
	}
	if loop.LastResult != nil {
		outcome := "ok"
		if !loop.LastResult.Success {
			outcome = "failed"
		}
		fmt.Fprintf(out, "Last result: %s: %s\n", outcome, loop.LastResult.Message)
	}
	if loop.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", loop.LastError)
	}
	if s.Busy {
		fmt.Fprintln(out, "Executor: busy")
	}
	if s.BreakerOpen {
		fmt.Fprintln(out, "Reasoning: circuit open, using fallback plans")
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
