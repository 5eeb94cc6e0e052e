package pending

import (
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// Queue is one client instance's handle on the shared pending-message state.
// Every mutation commits to the store first and notifies after, so a signal
// always points at state that is already visible to whoever re-reads.
type Queue struct {
	store    *Store
	notifier Notifier
	logger   *logger.Logger
}

// NewQueue creates a queue over the shared store and notifier.
func NewQueue(store *Store, notifier Notifier, log *logger.Logger) *Queue {
	return &Queue{
		store:    store,
		notifier: notifier,
		logger:   log.WithFields(zap.String("component", "pending-queue")),
	}
}

// List returns the queued messages for a session in insertion order.
func (q *Queue) List(sessionID string) ([]Message, error) {
	return q.store.List(sessionID)
}

// Append queues a message for a session.
func (q *Queue) Append(sessionID, text string) error {
	if err := q.store.Append(sessionID, text); err != nil {
		return err
	}
	q.logger.Debug("message queued", zap.String("session_id", sessionID))
	q.notifier.Notify(sessionID)
	return nil
}

// Update edits the queued message at index. Out-of-bounds is a no-op.
func (q *Queue) Update(sessionID string, index int, text string) error {
	changed, err := q.store.Update(sessionID, index, text)
	if err != nil {
		return err
	}
	if changed {
		q.notifier.Notify(sessionID)
	}
	return nil
}

// Remove deletes the queued message at index. Out-of-bounds is a no-op.
func (q *Queue) Remove(sessionID string, index int) error {
	changed, err := q.store.Remove(sessionID, index)
	if err != nil {
		return err
	}
	if changed {
		q.notifier.Notify(sessionID)
	}
	return nil
}

// DrainAll atomically returns and clears the session's queue. Draining an
// empty queue returns nil and signals nothing.
func (q *Queue) DrainAll(sessionID string) ([]Message, error) {
	msgs, err := q.store.DrainAll(sessionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		q.logger.Debug("queue drained",
			zap.String("session_id", sessionID),
			zap.Int("count", len(msgs)))
		q.notifier.Notify(sessionID)
	}
	return msgs, nil
}

// SetPermissionMode records a pending permission-mode change.
func (q *Queue) SetPermissionMode(sessionID, mode string) error {
	if err := q.store.SetPermissionMode(sessionID, mode); err != nil {
		return err
	}
	q.notifier.Notify(sessionID)
	return nil
}

// TakePermissionMode atomically returns and clears the pending
// permission-mode change, if any.
func (q *Queue) TakePermissionMode(sessionID string) (string, bool, error) {
	return q.store.TakePermissionMode(sessionID)
}

// Subscribe registers a queue-change callback with the shared notifier.
func (q *Queue) Subscribe(fn func(sessionID string)) func() {
	return q.notifier.Subscribe(fn)
}
