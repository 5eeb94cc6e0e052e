package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

type testEnv struct {
	bus    *bus.MemoryEventBus
	ctrl   *Controller
	server *httptest.Server
	wsURL  string
}

func newTestEnv(t *testing.T, cfg config.StreamConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := newTestLogger(t)
	memBus := bus.NewMemoryEventBus(log)
	ctrl := NewController(memBus, cfg, log)

	router := gin.New()
	ctrl.RegisterRoutes(router)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		ctrl.Shutdown()
		server.Close()
		memBus.Close()
	})

	return &testEnv{
		bus:    memBus,
		ctrl:   ctrl,
		server: server,
		wsURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream",
	}
}

func dial(t *testing.T, env *testEnv) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial(env.wsURL, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *gorillaws.Conn, timeout time.Duration) *stream.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := stream.DecodeFrame(data)
	require.NoError(t, err)
	return frame
}

func TestConnectFrameIsFirst(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{})

	conn := dial(t, env)
	defer conn.Close()

	frame := readFrame(t, conn, time.Second)
	assert.Equal(t, stream.KindConnect, frame.Kind)

	var payload stream.ConnectPayload
	require.NoError(t, frame.ParsePayload(&payload))
	assert.NotEmpty(t, payload.ConnectionID)
}

func TestForwardsBusEvents(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{})

	conn := dial(t, env)
	defer conn.Close()

	frame := readFrame(t, conn, time.Second)
	require.Equal(t, stream.KindConnect, frame.Kind)

	// Wait for the connection's subscriptions to be registered.
	require.Eventually(t, func() bool {
		return env.bus.SubscriptionCount() == len(stream.ForwardedKinds())
	}, time.Second, 10*time.Millisecond)

	event := bus.NewEvent(events.SessionChanged, "test", stream.SessionChangedPayload{
		ProjectID: "p1",
		SessionID: "s1",
	})
	require.NoError(t, env.bus.Publish(context.Background(), events.SessionChanged, event))

	frame = readFrame(t, conn, time.Second)
	assert.Equal(t, stream.KindSessionChanged, frame.Kind)

	var payload stream.SessionChangedPayload
	require.NoError(t, frame.ParsePayload(&payload))
	assert.Equal(t, "p1", payload.ProjectID)
	assert.Equal(t, "s1", payload.SessionID)
}

func TestCleanupUnregistersAllHandlers(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{})

	baseline := env.bus.SubscriptionCount()
	require.Equal(t, 0, baseline)

	const n = 5
	conns := make([]*gorillaws.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn := dial(t, env)
		frame := readFrame(t, conn, time.Second)
		require.Equal(t, stream.KindConnect, frame.Kind)
		conns = append(conns, conn)
	}

	require.Eventually(t, func() bool {
		return env.bus.SubscriptionCount() == n*len(stream.ForwardedKinds())
	}, time.Second, 10*time.Millisecond)

	for _, conn := range conns {
		require.NoError(t, conn.Close())
	}

	// Every connection's teardown must remove every handler it registered.
	require.Eventually(t, func() bool {
		return env.bus.SubscriptionCount() == baseline
	}, 2*time.Second, 10*time.Millisecond, "bus handler count did not return to baseline")

	require.Eventually(t, func() bool {
		return env.ctrl.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeat(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{
		HeartbeatInterval: 50 * time.Millisecond,
		InactivityTimeout: 10 * time.Second,
	})

	conn := dial(t, env)
	defer conn.Close()

	frame := readFrame(t, conn, time.Second)
	require.Equal(t, stream.KindConnect, frame.Kind)

	frame = readFrame(t, conn, time.Second)
	assert.Equal(t, stream.KindHeartbeat, frame.Kind)
}

func TestInactivityTimeoutClosesAndCleansUp(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{
		HeartbeatInterval: 50 * time.Millisecond,
		InactivityTimeout: 200 * time.Millisecond,
	})

	conn := dial(t, env)
	defer conn.Close()

	frame := readFrame(t, conn, time.Second)
	require.Equal(t, stream.KindConnect, frame.Kind)

	// Produce no events and send nothing; only heartbeats flow. The server
	// must force-close and fully unregister.
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		f, decodeErr := stream.DecodeFrame(data)
		require.NoError(t, decodeErr)
		require.Equal(t, stream.KindHeartbeat, f.Kind, "only heartbeats expected on an idle connection")
		require.True(t, time.Now().Before(deadline), "connection not closed by inactivity timeout")
	}

	require.Eventually(t, func() bool {
		return env.bus.SubscriptionCount() == 0 && env.ctrl.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientActivityDefersInactivityTimeout(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{
		HeartbeatInterval: 50 * time.Millisecond,
		InactivityTimeout: 250 * time.Millisecond,
	})

	conn := dial(t, env)
	defer conn.Close()

	frame := readFrame(t, conn, time.Second)
	require.Equal(t, stream.KindConnect, frame.Kind)

	// Keep sending client messages faster than the inactivity timeout; the
	// connection must stay open well past the window.
	end := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(end) {
		require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte(`{}`)))
		time.Sleep(100 * time.Millisecond)
	}

	assert.Equal(t, 1, env.ctrl.ConnectionCount(), "active connection must not be closed")
}

func TestShutdownClosesConnections(t *testing.T) {
	env := newTestEnv(t, config.StreamConfig{})

	conn := dial(t, env)
	defer conn.Close()

	frame := readFrame(t, conn, time.Second)
	require.Equal(t, stream.KindConnect, frame.Kind)

	env.ctrl.Shutdown()

	require.Eventually(t, func() bool {
		return env.bus.SubscriptionCount() == 0 && env.ctrl.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
