// Package stream bridges the event bus to outbound client connections. Each
// connection gets its own set of bus subscriptions, a heartbeat timer, and an
// inactivity timeout; teardown must unregister everything it registered.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events/bus"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultInactivityTimeout = 5 * time.Minute
	defaultSendBufferSize    = 256

	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Controller owns all outbound event-stream connections.
type Controller struct {
	bus    bus.EventBus
	cfg    config.StreamConfig
	logger *logger.Logger

	mu     sync.Mutex
	conns  map[*connection]struct{}
	closed bool
}

// NewController creates a stream controller forwarding events from eventBus.
func NewController(eventBus bus.EventBus, cfg config.StreamConfig, log *logger.Logger) *Controller {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = defaultInactivityTimeout
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	return &Controller{
		bus:    eventBus,
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "stream-controller")),
		conns:  make(map[*connection]struct{}),
	}
}

// RegisterRoutes adds the stream endpoint to the Gin engine.
func (c *Controller) RegisterRoutes(router gin.IRouter) {
	router.GET("/api/v1/stream", c.HandleConnection)
}

// HandleConnection upgrades the request and runs the connection until it
// closes. The first frame sent is always connect.
func (c *Controller) HandleConnection(g *gin.Context) {
	wsConn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		c.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	conn := newConnection(uuid.New().String(), wsConn, c)
	if !c.track(conn) {
		// Controller already shut down; refuse the connection.
		_ = wsConn.Close()
		return
	}
	conn.run()
}

// ConnectionCount returns the number of live connections.
func (c *Controller) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Shutdown closes every live connection and runs its cleanup path.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closed = true
	conns := make([]*connection, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		conn.close("server shutdown")
	}
	c.logger.Info("Stream controller stopped", zap.Int("connections_closed", len(conns)))
}

func (c *Controller) track(conn *connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conns[conn] = struct{}{}
	return true
}

func (c *Controller) untrack(conn *connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, conn)
}
