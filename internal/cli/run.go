package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/craftpilot/internal/config"
	"github.com/harun/craftpilot/internal/logger"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	runOffline     bool
	runNoDashboard bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the game and start the agent",
	Long: `Connect to the game session bridge and run the control loop until
interrupted. With --offline the agent runs against an in-memory session,
which is useful for checking credentials and prompts without a server.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "run against an in-memory session")
	runCmd.Flags().BoolVar(&runNoDashboard, "no-dashboard", false, "disable the dashboard server")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runOffline {
		cfg.Session.Offline = true
	}
	if runNoDashboard {
		cfg.Dashboard.Enabled = false
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	for _, w := range config.NewValidator().Warnings(cfg) {
		log.Warn().Msg(w)
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	pidFile := pidFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("agent is already running (PID file: %s)", pidFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A CLI --log-level wins over reloaded files.
	setLevel := log.SetLevel
	if logLevel != "" {
		setLevel = nil
	}

	a, err := newApp(ctx, cfg, log.GetZerolog(), appOptions{
		Loader:   loader,
		SetLevel: setLevel,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()

	if err := writePIDFile(pidFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		if err := removePIDFile(pidFile); err != nil {
			log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	if a.server != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: http://%s\n", a.server.Addr())
	}

	if err := a.run(ctx); err != nil {
		return err
	}
	log.Info().Msg("Agent stopped")
	return nil
}
