// Package autoresume dispatches queued messages when a session pauses. One
// detected running-to-paused transition triggers at most one drain, and
// drained messages are delivered at most once: a failed dispatch is surfaced,
// never re-enqueued.
package autoresume

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/client"
	"github.com/agentdeck/agentdeck/internal/client/pending"
	"github.com/agentdeck/agentdeck/internal/client/tracker"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/tracing"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

const defaultDispatchTimeout = 30 * time.Second

// Dispatcher sends a drained batch to a session. Owned by the session
// management subsystem; implemented over HTTP by internal/client/api.
type Dispatcher interface {
	DispatchMessages(ctx context.Context, sessionID string, req v1.DispatchRequest) error
}

// CompletionNotifier surfaces the end-of-run signals to the user.
type CompletionNotifier interface {
	// TaskCompleted fires when a session pauses with nothing queued: sound
	// if enabled, push notification if the app is backgrounded.
	TaskCompleted(sessionID string)

	// DispatchFailed fires when an auto-resume dispatch fails. The drained
	// messages are gone from the queue by design.
	DispatchFailed(sessionID string, err error)
}

// Coordinator wires the tracker's pause transitions to the queue and the
// dispatcher.
type Coordinator struct {
	queue      *pending.Queue
	dispatcher Dispatcher
	notifier   CompletionNotifier
	dialogs    *DialogRegistry
	timeout    time.Duration
	logger     *logger.Logger
}

// NewCoordinator creates a coordinator. A zero timeout uses the default.
func NewCoordinator(queue *pending.Queue, dispatcher Dispatcher, notifier CompletionNotifier, dialogs *DialogRegistry, timeout time.Duration, log *logger.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Coordinator{
		queue:      queue,
		dispatcher: dispatcher,
		notifier:   notifier,
		dialogs:    dialogs,
		timeout:    timeout,
		logger:     log.WithFields(zap.String("component", "auto-resume")),
	}
}

// Bind subscribes the coordinator to roster updates: every
// sessionProcessChanged frame feeds the tracker, and each detected pause
// transition is handled in frame order. Returns the unregister function.
func (c *Coordinator) Bind(m *client.Manager, t *tracker.Tracker) func() {
	return m.AddEventListener(stream.KindSessionProcessChanged, func(frame *stream.Frame) {
		var payload stream.SessionProcessChangedPayload
		if err := frame.ParsePayload(&payload); err != nil {
			c.logger.Warn("Ignoring malformed roster payload", zap.Error(err))
			return
		}
		for _, transition := range t.Observe(payload.Processes) {
			c.HandleTransition(transition)
		}
	})
}

// HandleTransition runs the auto-resume decision for one pause transition.
// The drain happens synchronously here, before this function returns and
// before the dispatch call resolves: whichever instance drains first wins,
// and a loser sees an empty queue and does nothing.
func (c *Coordinator) HandleTransition(transition tracker.Transition) {
	sessionID := transition.SessionID
	log := c.logger.WithSessionID(sessionID)

	if c.dialogs.IsOpen(sessionID) {
		// The user is already deciding what to send; leave the queue alone
		// and let the dialog produce its own notification.
		log.Debug("send-options dialog open, skipping auto-resume")
		return
	}

	msgs, err := c.queue.DrainAll(sessionID)
	if err != nil {
		log.Error("failed to drain pending queue", zap.Error(err))
		return
	}

	if len(msgs) == 0 {
		c.notifier.TaskCompleted(sessionID)
		return
	}

	req := v1.DispatchRequest{
		Messages: make([]v1.DispatchMessage, 0, len(msgs)),
	}
	for _, msg := range msgs {
		req.Messages = append(req.Messages, v1.DispatchMessage{
			Text:     msg.Text,
			QueuedAt: msg.QueuedAt,
		})
	}
	if mode, ok, err := c.queue.TakePermissionMode(sessionID); err != nil {
		log.Warn("failed to read pending permission mode", zap.Error(err))
	} else if ok {
		req.PermissionMode = mode
	}

	log.Info("auto-resuming session with queued messages",
		zap.Int("message_count", len(req.Messages)))

	// A new run is about to start; the completion notification is
	// suppressed to avoid double-signaling. Dispatch is one bounded
	// asynchronous call; the queue is already empty either way.
	go c.dispatch(sessionID, req)
}

func (c *Coordinator) dispatch(sessionID string, req v1.DispatchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	ctx, span := tracing.Tracer("auto-resume").Start(ctx, "dispatch queued messages")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("message.count", len(req.Messages)),
	)

	if err := c.dispatcher.DispatchMessages(ctx, sessionID, req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.WithSessionID(sessionID).Error("auto-resume dispatch failed",
			zap.Int("message_count", len(req.Messages)),
			zap.Error(err))
		c.notifier.DispatchFailed(sessionID, err)
	}
}
