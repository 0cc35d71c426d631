package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Envelope types exchanged with the bridge process.
const (
	EnvelopeLogin   = "login"
	EnvelopeCommand = "command"
	EnvelopeEvent   = "event"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxMessageSize      = 1 << 20
)

// Envelope is one JSON frame on the bridge socket.
type Envelope struct {
	Type    string  `json:"type"`
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name,omitempty"`
	Payload Payload `json:"payload,omitempty"`
}

// BridgeConfig holds bridge connection settings
type BridgeConfig struct {
	URL          string
	Host         string
	Port         int
	Username     string
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Bridge is a Session backed by a websocket connection to a bridge process.
type Bridge struct {
	conn     *websocket.Conn
	handlers *handlerSet
	logger   zerolog.Logger

	writeMu      sync.Mutex
	writeTimeout time.Duration
	pingInterval time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to the bridge, sends the login envelope and starts reading
// events.
func Dial(ctx context.Context, cfg BridgeConfig) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bridge %s: %w", cfg.URL, err)
	}

	b := &Bridge{
		conn:         conn,
		handlers:     newHandlerSet(),
		logger:       cfg.Logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}

	login := Envelope{
		Type: EnvelopeLogin,
		ID:   newMessageID(),
		Payload: Payload{
			"host":     cfg.Host,
			"port":     cfg.Port,
			"username": cfg.Username,
		},
	}
	if err := b.write(login); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send login: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	b.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		b.extendReadDeadline()
		return nil
	})

	b.wg.Add(2)
	go b.readLoop()
	go b.pingLoop()

	b.logger.Info().
		Str("url", cfg.URL).
		Str("username", cfg.Username).
		Msg("Connected to session bridge")

	return b, nil
}

// Send writes a command envelope.
func (b *Bridge) Send(name string, payload Payload) error {
	if b.closed.Load() {
		return ErrClosed
	}
	env := Envelope{Type: EnvelopeCommand, ID: newMessageID(), Name: name, Payload: payload}
	if err := b.write(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	return nil
}

// On registers an event handler.
func (b *Bridge) On(event Event, handler Handler) func() {
	return b.handlers.add(event, handler)
}

// Close closes the connection and waits for the reader to exit. It does not
// emit a disconnect event and must not be called from an event handler.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)

		b.writeMu.Lock()
		_ = b.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		b.writeMu.Unlock()

		err = b.conn.Close()
		b.wg.Wait()
	})
	return err
}

func (b *Bridge) readLoop() {
	defer b.wg.Done()

	for {
		_, message, err := b.conn.ReadMessage()
		if err != nil {
			if b.closed.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Error().Err(err).Msg("Session bridge read failed")
			}
			b.closed.Store(true)
			b.handlers.emit(EventDisconnect, Payload{"reason": err.Error()})
			return
		}
		b.extendReadDeadline()

		env, err := decodeEnvelope(message)
		if err != nil {
			b.logger.Warn().Err(err).Msg("Dropping malformed bridge frame")
			continue
		}
		if env.Type != EnvelopeEvent || env.Name == "" {
			continue
		}
		if env.Payload == nil {
			env.Payload = Payload{}
		}
		b.handlers.emit(Event(env.Name), env.Payload)
	}
}

func (b *Bridge) pingLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(b.writeTimeout))
			b.writeMu.Unlock()
			if err != nil {
				b.logger.Debug().Err(err).Msg("Bridge ping failed")
			}
		}
	}
}

func (b *Bridge) write(env Envelope) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		return err
	}
	return b.conn.WriteJSON(env)
}

// extendReadDeadline allows three missed pongs before the read fails.
func (b *Bridge) extendReadDeadline() {
	_ = b.conn.SetReadDeadline(time.Now().Add(3 * b.pingInterval))
}

// decodeEnvelope keeps payload numbers as json.Number so 64-bit ids
// survive decoding.
func decodeEnvelope(message []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(message))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func newMessageID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id
}
