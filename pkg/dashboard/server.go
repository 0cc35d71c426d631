// Package dashboard serves the read/control HTTP surface: status, history and
// decision traces, a manual command endpoint sharing the executor's
// single-flight guard, and a websocket stream of periodic snapshots.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/craftpilot/internal/observability"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/harun/craftpilot/pkg/controlloop"
	"github.com/harun/craftpilot/pkg/decision"
	"github.com/harun/craftpilot/pkg/executor"
	"github.com/harun/craftpilot/pkg/state"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultPort              = 8420
	DefaultRateLimit         = 1.0
	DefaultBurst             = 3
	DefaultBroadcastInterval = 2 * time.Second
	defaultHistoryLimit      = 20
	maxCommandBody           = 4 << 10
	shutdownTimeout          = 5 * time.Second
)

// StatusSource reports the control loop's status.
type StatusSource interface {
	Status() controlloop.Status
}

// StateSource exposes the world state and action history.
type StateSource interface {
	State() state.WorldState
	RecentHistory(n int) []state.HistoryEntry
	HistoryCapacity() int
}

// TraceSource exposes recent decision traces.
type TraceSource interface {
	Traces() []decision.Trace
	BreakerOpen() bool
}

// Commander runs manual commands.
type Commander interface {
	Execute(ctx context.Context, command string) executor.Result
	IsBusy() bool
}

// Config configures a Server.
type Config struct {
	Host  string
	Port  int
	Token string

	// RateLimit is manual commands per second; Burst is the bucket size.
	RateLimit float64
	Burst     int

	BroadcastInterval time.Duration

	Status    StatusSource
	State     StateSource
	Traces    TraceSource
	Commander Commander

	Logger zerolog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	addr              string
	token             string
	broadcastInterval time.Duration

	status    StatusSource
	state     StateSource
	traces    TraceSource
	commander Commander

	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	hub      *hub
	logger   zerolog.Logger

	// streamMu orders client admission against shutdown so every tracked
	// reader is in the hub when closeStreams runs.
	streamMu sync.Mutex
	closing  bool
	readers  sync.WaitGroup
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Loop        controlloop.Status `json:"loop"`
	World       state.WorldState   `json:"world"`
	Busy        bool               `json:"busy"`
	BreakerOpen bool               `json:"breaker_open"`
	Clients     int                `json:"clients"`
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a dashboard server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state source is required")
	}
	if cfg.Traces == nil {
		return nil, fmt.Errorf("trace source is required")
	}
	if cfg.Commander == nil {
		return nil, fmt.Errorf("commander is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = DefaultBroadcastInterval
	}

	observability.EnsureRegistered()

	return &Server{
		addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		token:             cfg.Token,
		broadcastInterval: cfg.BroadcastInterval,
		status:            cfg.Status,
		state:             cfg.State,
		traces:            cfg.Traces,
		commander:         cfg.Commander,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		hub:               newHub(cfg.Logger),
		logger:            cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.authorized(s.handleStatus))
	mux.HandleFunc("/api/history", s.authorized(s.handleHistory))
	mux.HandleFunc("/api/traces", s.authorized(s.handleTraces))
	mux.HandleFunc("/api/command", s.authorized(s.handleCommand))
	mux.HandleFunc("/ws", s.authorized(s.handleStream))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Starting dashboard")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(s.broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("dashboard server: %w", err)
			}
			return nil
		case <-ticker.C:
			s.broadcastSnapshot()
		case <-ctx.Done():
			s.logger.Info().Msg("Shutting down dashboard")
			s.closeStreams()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown dashboard: %w", err)
			}
			s.readers.Wait()
			return nil
		}
	}
}

// broadcastSnapshot pushes the current status to stream clients.
func (s *Server) broadcastSnapshot() {
	if s.hub.Count() == 0 {
		return
	}
	s.hub.Broadcast("snapshot", s.statusResponse())
}

func (s *Server) statusResponse() StatusResponse {
	return StatusResponse{
		Loop:        s.status.Status(),
		World:       s.state.State(),
		Busy:        s.commander.IsBusy(),
		BreakerOpen: s.traces.BreakerOpen(),
		Clients:     s.hub.Count(),
	}
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && !s.validToken(r) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next(w, r)
	}
}

// validToken accepts a bearer header, or a token query parameter for
// websocket clients that cannot set headers.
func (s *Server) validToken(r *http.Request) bool {
	got := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if capacity := s.state.HistoryCapacity(); limit > capacity {
		limit = capacity
	}

	entries := s.state.RecentHistory(limit)
	if entries == nil {
		entries = []state.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	traces := s.traces.Traces()
	if traces == nil {
		traces = []decision.Trace{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "command is required"})
		return
	}
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}

	// The action must not die with the HTTP request.
	ctx := tracing.NewManualContext(context.WithoutCancel(r.Context()))
	logger := tracing.LoggerFromContext(ctx, s.logger)

	result := s.commander.Execute(ctx, command)
	if !result.Success && result.Message == executor.BusyMessage {
		writeJSON(w, http.StatusConflict, result)
		return
	}

	logger.Info().
		Str("command", command).
		Bool("success", result.Success).
		Str("result", result.Message).
		Msg("Manual command executed")

	s.hub.Broadcast("command", map[string]any{"command": command, "result": result})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade stream connection")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		_ = conn.Close()
		return
	}
	c := &client{id: id, conn: conn, remoteAddr: r.RemoteAddr, connectedAt: time.Now()}
	if !s.admit(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s.logger.Info().Str("client_id", id).Str("ip", r.RemoteAddr).Msg("Stream client connected")

	if err := s.hub.send(c, "hello", s.statusResponse()); err != nil {
		s.hub.remove(id)
		_ = conn.Close()
		s.readers.Done()
		return
	}

	go s.readClient(c)
}

// admit registers a stream client and its reader unless shutdown has begun.
func (s *Server) admit(c *client) bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.closing {
		return false
	}
	s.readers.Add(1)
	s.hub.add(c)
	return true
}

// closeStreams stops admitting clients and closes the connected ones.
func (s *Server) closeStreams() {
	s.streamMu.Lock()
	s.closing = true
	s.streamMu.Unlock()
	s.hub.closeAll()
}

// readClient drains client frames so control messages are processed and
// removes the client once the connection ends.
func (s *Server) readClient(c *client) {
	defer s.readers.Done()
	defer func() {
		s.hub.remove(c.id)
		_ = c.conn.Close()
		s.logger.Info().Str("client_id", c.id).Msg("Stream client disconnected")
	}()

	c.conn.SetReadLimit(1 << 10)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("client_id", c.id).Msg("Stream read error")
			}
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
