package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command <action...>",
	Short: "Run a manual action on the running agent",
	Long: `Send one action to the running agent, for example:

  craftpilot command move north 5
  craftpilot command chat hello

The action waits for the executor; it is rejected while another action runs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	if !cfg.Dashboard.Enabled {
		return fmt.Errorf("dashboard is disabled")
	}

	client := newDashboardClient(dashboardAddr(cfg.Dashboard), cfg.Dashboard.Token)
	result, err := client.Command(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("action failed: %s", result.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	return nil
}
