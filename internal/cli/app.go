package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/harun/craftpilot/internal/config"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/harun/craftpilot/pkg/agent"
	"github.com/harun/craftpilot/pkg/controlloop"
	"github.com/harun/craftpilot/pkg/dashboard"
	"github.com/harun/craftpilot/pkg/decision"
	"github.com/harun/craftpilot/pkg/executor"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// appOptions replaces external dependencies, mostly for tests.
type appOptions struct {
	// Session is used instead of dialing the bridge.
	Session session.Session
	// Completer is used instead of the provider-backed reasoner.
	Completer decision.Completer
	// Loader enables hot reload when its config file exists.
	Loader *config.Loader
	// SetLevel applies a reloaded log level.
	SetLevel func(string)
}

// app is one wired agent process.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	session  session.Session
	store    *state.Store
	executor *executor.Executor
	engine   *decision.Engine
	loop     *controlloop.Loop
	server   *dashboard.Server

	loader   *config.Loader
	setLevel func(string)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts appOptions) (*app, error) {
	store, err := state.NewStore(state.Config{
		HistoryCapacity: cfg.State.HistoryCapacity,
		Logger:          logger.With().Str("component", "state").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}

	completer := opts.Completer
	if completer == nil {
		reasoner, err := agent.NewReasoner(agent.Config{
			Profiles: authProfiles(cfg.AI.Profiles),
			Model: agent.ModelConfig{
				Model:          cfg.Model.Model,
				Temperature:    cfg.Model.Temperature,
				MaxTokens:      cfg.Model.MaxTokens,
				RequestTimeout: cfg.Model.RequestTimeout,
			},
			Logger: logger.With().Str("component", "reasoner").Logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoner: %w", err)
		}
		completer = reasoner
	}

	engine, err := decision.NewEngine(decision.Config{
		Completer:            completer,
		Errors:               store,
		MaxConsecutiveErrors: cfg.Decision.MaxConsecutiveErrors,
		BreakerCooldown:      cfg.Decision.BreakerCooldown,
		TraceCapacity:        cfg.Decision.TraceCapacity,
		Logger:               logger.With().Str("component", "decision").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}

	sess := opts.Session
	if sess == nil {
		if cfg.Session.Offline {
			sess = session.NewMemory()
		} else {
			bridge, err := session.Dial(ctx, session.BridgeConfig{
				URL:          cfg.Session.URL,
				Host:         cfg.Session.Host,
				Port:         cfg.Session.Port,
				Username:     cfg.Session.Username,
				PingInterval: cfg.Session.PingInterval,
				Logger:       logger.With().Str("component", "session").Logger(),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to game session: %w", err)
			}
			sess = bridge
		}
	}

	exec, err := executor.New(executor.Config{
		Sender:      sess,
		Store:       store,
		Timeout:     cfg.Executor.ActionTimeout,
		StepDelay:   cfg.Executor.StepDelay,
		StepSize:    cfg.Executor.StepSize,
		MaxSteps:    cfg.Executor.MaxSteps,
		MaxDistance: cfg.Executor.MaxDistance,
		Logger:      logger.With().Str("component", "executor").Logger(),
	})
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	loop, err := controlloop.New(controlloop.Config{
		Session:       sess,
		Store:         store,
		Decider:       engine,
		Executor:      exec,
		Interval:      cfg.Loop.Interval,
		ErrorCooldown: cfg.Loop.ErrorCooldown,
		// A memory session never spawns.
		WaitForSpawn: cfg.Loop.WaitForSpawn && !cfg.Session.Offline,
		SyncSchedule: cfg.Loop.SyncSchedule,
		Logger:       logger.With().Str("component", "controlloop").Logger(),
	})
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("failed to create control loop: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		session:  sess,
		store:    store,
		executor: exec,
		engine:   engine,
		loop:     loop,
		loader:   opts.Loader,
		setLevel: opts.SetLevel,
	}

	if cfg.Dashboard.Enabled {
		server, err := dashboard.NewServer(dashboard.Config{
			Host:              cfg.Dashboard.Host,
			Port:              cfg.Dashboard.Port,
			Token:             cfg.Dashboard.Token,
			RateLimit:         cfg.Dashboard.RateLimit,
			Burst:             cfg.Dashboard.Burst,
			BroadcastInterval: cfg.Dashboard.BroadcastInterval,
			Status:            loop,
			State:             store,
			Traces:            engine,
			Commander:         exec,
			Logger:            logger.With().Str("component", "dashboard").Logger(),
		})
		if err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("failed to create dashboard: %w", err)
		}
		a.server = server
	}

	return a, nil
}

// run blocks until the loop exits. A session fault ends every component and
// is returned; cancelling ctx is a clean stop.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.loop.Run(gctx)
	})

	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(gctx)
		})
	}

	if a.loader != nil {
		if _, err := os.Stat(a.loader.GetConfigPath()); err == nil {
			g.Go(func() error {
				return a.loader.Watch(gctx, a.applyConfig, func(err error) {
					a.logger.Warn().Err(err).Msg("Config reload failed")
				})
			})
		}
	}

	a.logger.Info().
		Bool("offline", a.cfg.Session.Offline).
		Bool("dashboard", a.server != nil).
		Dur("interval", a.loop.Interval()).
		Msg("Agent started")

	err := g.Wait()
	a.loop.Stop()

	var fault *controlloop.SessionFault
	if errors.As(err, &fault) {
		a.logger.Error().Str("event", string(fault.Event)).Str("reason", fault.Reason).Msg("Session ended")
	}
	return err
}

// applyConfig hot-applies the settings that can change without a restart.
func (a *app) applyConfig(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		a.logger.Warn().Err(err).Msg("Ignoring invalid config reload")
		return
	}
	if cfg.Loop.Interval != a.loop.Interval() {
		a.loop.SetInterval(cfg.Loop.Interval)
		a.logger.Info().Dur("interval", a.loop.Interval()).Msg("Loop interval updated")
	}
	if a.setLevel != nil {
		a.setLevel(cfg.Logging.Level)
	}
}

func (a *app) close() error {
	var errs []error
	if err := a.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session: %w", err))
	}
	if a.cfg.Tracing.Enabled {
		if err := tracing.ShutdownOpenTelemetry(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

func authProfiles(profiles []config.AIProfile) []agent.AuthProfile {
	out := make([]agent.AuthProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Model:    p.Model,
			Priority: p.Priority,
		})
	}
	return out
}

func dashboardAddr(cfg config.DashboardConfig) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = dashboard.DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
