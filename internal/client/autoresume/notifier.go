package autoresume

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// UINotifier is the default CompletionNotifier: it models the sound and
// push-notification surface of the UI shell. The shell flips SetBackgrounded
// as the app gains and loses focus.
type UINotifier struct {
	soundEnabled atomic.Bool
	backgrounded atomic.Bool
	logger       *logger.Logger
}

// NewUINotifier creates a notifier with sound enabled and the app assumed
// foregrounded.
func NewUINotifier(log *logger.Logger) *UINotifier {
	n := &UINotifier{
		logger: log.WithFields(zap.String("component", "ui-notifier")),
	}
	n.soundEnabled.Store(true)
	return n
}

// SetSoundEnabled toggles the completion sound.
func (n *UINotifier) SetSoundEnabled(enabled bool) {
	n.soundEnabled.Store(enabled)
}

// SetBackgrounded records whether the app is currently backgrounded.
func (n *UINotifier) SetBackgrounded(backgrounded bool) {
	n.backgrounded.Store(backgrounded)
}

// TaskCompleted signals that a session finished with nothing queued.
func (n *UINotifier) TaskCompleted(sessionID string) {
	log := n.logger.WithSessionID(sessionID)
	if n.soundEnabled.Load() {
		log.Info("task completed", zap.String("signal", "sound"))
	} else {
		log.Info("task completed")
	}
	if n.backgrounded.Load() {
		log.Info("task completed", zap.String("signal", "push"))
	}
}

// DispatchFailed surfaces a failed auto-resume dispatch as a visible,
// non-fatal error.
func (n *UINotifier) DispatchFailed(sessionID string, err error) {
	n.logger.WithSessionID(sessionID).Error("queued messages could not be delivered",
		zap.Error(err))
}
