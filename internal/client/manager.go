// Package client implements the per-tab subscription manager: one stream
// connection at a time, typed listener registration, and reconnection.
// Missed events are never replayed; listeners for the connect kind must
// re-fetch whatever state they need.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	dialTimeout           = 10 * time.Second

	// heartbeatGrace multiplies the heartbeat interval into the read
	// deadline. One missed heartbeat never triggers a reconnect; sustained
	// absence does.
	heartbeatGrace = 3
)

// Handler receives one decoded frame. Handlers run on the read goroutine in
// frame receive order; a panicking handler is isolated and logged.
type Handler func(frame *stream.Frame)

// Config configures a Manager.
type Config struct {
	// URL is the websocket stream endpoint (ws://host/api/v1/stream).
	URL string

	// HeartbeatInterval must match the server's; it sizes the read deadline.
	HeartbeatInterval time.Duration
}

// Manager owns exactly one stream connection at a time. Listener
// registrations live in the manager, not on the connection, so registering
// before (or between) connections is safe: nothing is lost and nothing is
// registered twice.
type Manager struct {
	cfg    Config
	logger *logger.Logger

	mu        sync.Mutex
	listeners map[stream.Kind]map[int]Handler
	nextID    int

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewManager creates a subscription manager for the given endpoint.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Manager{
		cfg:       cfg,
		logger:    log.WithFields(zap.String("component", "stream-client")),
		listeners: make(map[stream.Kind]map[int]Handler),
	}
}

// AddEventListener registers a handler for one frame kind and returns its
// unregister function. Safe to call at any time, connected or not.
func (m *Manager) AddEventListener(kind stream.Kind, handler Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listeners[kind] == nil {
		m.listeners[kind] = make(map[int]Handler)
	}
	id := m.nextID
	m.nextID++
	m.listeners[kind][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners[kind], id)
			if len(m.listeners[kind]) == 0 {
				delete(m.listeners, kind)
			}
		})
	}
}

// IsConnected reports whether a connection is currently open.
func (m *Manager) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// Run connects and keeps reconnecting with exponential backoff until ctx is
// cancelled. Each successful connection is read to completion before the
// next attempt.
func (m *Manager) Run(ctx context.Context) error {
	delay := initialReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := m.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			m.logger.Warn("Stream connection lost",
				zap.Error(err),
				zap.Duration("retry_in", delay))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runOnce dials once and pumps frames until the connection fails or ctx is
// cancelled.
func (m *Manager) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, m.cfg.URL, nil)
	cancel()
	if err != nil {
		return err
	}

	m.connMu.Lock()
	m.conn = conn
	m.connected = true
	m.connMu.Unlock()

	m.logger.Info("Connected to event stream", zap.String("url", m.cfg.URL))

	// Close the socket when ctx ends so the blocked read returns.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	err = m.readLoop(conn)

	stop()
	_ = conn.Close()

	m.connMu.Lock()
	m.conn = nil
	m.connected = false
	m.connMu.Unlock()

	return err
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	deadline := m.cfg.HeartbeatInterval * heartbeatGrace

	for {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := stream.DecodeFrame(data)
		if err != nil {
			m.logger.Warn("Ignoring malformed frame", zap.Error(err))
			continue
		}

		// Heartbeats only refresh the read deadline; their payload is
		// ignored by contract.
		if frame.Kind == stream.KindHeartbeat {
			continue
		}

		m.dispatch(frame)
	}
}

// dispatch fans a frame out to the listeners registered for its kind.
// Unknown kinds with no listeners are silently ignored for forward
// compatibility.
func (m *Manager) dispatch(frame *stream.Frame) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.listeners[frame.Kind]))
	for _, h := range m.listeners[frame.Kind] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		m.invoke(frame, h)
	}
}

func (m *Manager) invoke(frame *stream.Frame, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Listener panic",
				zap.String("kind", string(frame.Kind)),
				zap.Any("panic", r))
		}
	}()
	h(frame)
}
