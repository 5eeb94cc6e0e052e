package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

// connection is one outbound event stream. It owns the bus subscriptions it
// registers and must unregister every one of them on any close path.
type connection struct {
	id   string
	ctrl *Controller
	conn *gorillaws.Conn

	send     chan []byte
	activity chan struct{}
	done     chan struct{}

	subsMu    sync.Mutex
	subs      []bus.Subscription
	closeOnce sync.Once
	logger    *logger.Logger
}

func newConnection(id string, wsConn *gorillaws.Conn, ctrl *Controller) *connection {
	return &connection{
		id:       id,
		ctrl:     ctrl,
		conn:     wsConn,
		send:     make(chan []byte, ctrl.cfg.SendBufferSize),
		activity: make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   ctrl.logger.WithConnectionID(id),
	}
}

// run drives the connection until it closes. Blocks the caller (the HTTP
// handler goroutine) for the connection lifetime.
func (p *connection) run() {
	p.logger.Debug("Stream connection opened")

	// The connect frame goes into the send queue before any subscription is
	// registered, so it is always the first frame on the wire and no event
	// can precede it.
	p.enqueue(stream.KindConnect, stream.ConnectPayload{ConnectionID: p.id})
	p.subscribe()

	go p.readPump()
	p.writePump()
}

// subscribe registers one bus subscription per forwarded subject.
func (p *connection) subscribe() {
	for subject, kind := range events.SubjectKinds() {
		kind := kind
		sub, err := p.ctrl.bus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
			p.enqueue(kind, event.Data)
			return nil
		})
		if err != nil {
			p.logger.Error("Failed to subscribe",
				zap.String("subject", subject),
				zap.Error(err))
			continue
		}
		p.subsMu.Lock()
		p.subs = append(p.subs, sub)
		p.subsMu.Unlock()
	}
}

// enqueue builds a frame and queues it for sending. A full send buffer drops
// the frame: delivery is best-effort and a stalled client must not block the
// bus.
func (p *connection) enqueue(kind stream.Kind, payload interface{}) {
	frame, err := stream.NewFrame(kind, payload)
	if err != nil {
		p.logger.Error("Failed to build frame", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	data, err := frame.Encode()
	if err != nil {
		p.logger.Error("Failed to encode frame", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	select {
	case p.send <- data:
	case <-p.done:
	default:
		p.logger.Warn("Dropping frame for slow client", zap.String("kind", string(kind)))
	}
}

// writePump owns all writes: queued frames, the heartbeat ticker, and the
// inactivity timer. Heartbeats do not count as activity, otherwise an idle
// connection would never time out.
func (p *connection) writePump() {
	heartbeat := time.NewTicker(p.ctrl.cfg.HeartbeatInterval)
	idle := time.NewTimer(p.ctrl.cfg.InactivityTimeout)
	defer heartbeat.Stop()
	defer idle.Stop()

	for {
		select {
		case <-p.done:
			return

		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
				p.close("write error")
				return
			}
			resetTimer(idle, p.ctrl.cfg.InactivityTimeout)

		case <-heartbeat.C:
			frame, err := stream.NewFrame(stream.KindHeartbeat, nil)
			if err != nil {
				continue
			}
			data, err := frame.Encode()
			if err != nil {
				continue
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
				p.close("heartbeat write error")
				return
			}

		case <-p.activity:
			resetTimer(idle, p.ctrl.cfg.InactivityTimeout)

		case <-idle.C:
			p.logger.Info("Closing inactive stream connection",
				zap.Duration("timeout", p.ctrl.cfg.InactivityTimeout))
			p.close("inactivity timeout")
			return
		}
	}
}

// readPump consumes inbound messages. Clients do not send requests on this
// channel; reads exist to detect disconnects and to register client activity
// against the inactivity timer.
func (p *connection) readPump() {
	defer p.close("client disconnect")

	p.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure, gorillaws.CloseAbnormalClosure) {
				p.logger.Error("Stream read error", zap.Error(err))
			}
			return
		}

		select {
		case p.activity <- struct{}{}:
		default:
		}

		// Tolerate unknown client chatter; log at debug for diagnosis.
		if len(message) > 0 && !json.Valid(message) {
			p.logger.Debug("Ignoring non-JSON client message", zap.Int("bytes", len(message)))
		}
	}
}

// close tears the connection down exactly once: every bus subscription this
// connection registered is removed, timers stop via done, and the socket
// closes. Leaking any of these across reconnects grows the bus registry
// unbounded.
func (p *connection) close(reason string) {
	p.closeOnce.Do(func() {
		p.subsMu.Lock()
		subs := p.subs
		p.subs = nil
		p.subsMu.Unlock()
		for _, sub := range subs {
			if sub != nil && sub.IsValid() {
				_ = sub.Unsubscribe()
			}
		}

		close(p.done)
		_ = p.conn.Close()
		p.ctrl.untrack(p)

		p.logger.Debug("Stream connection closed", zap.String("reason", reason))
	})
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
