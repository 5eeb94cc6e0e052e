// Package tracker records last-observed session process status and detects
// the running-to-paused edge that makes a session eligible for auto-resume.
package tracker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

// Transition is one detected running-to-paused edge.
type Transition struct {
	SessionID string
	From      v1.SessionProcessStatus
	To        v1.SessionProcessStatus
}

// Tracker keys everything by the stable session id. Process ids change on
// every restart and must never be used for transition detection.
type Tracker struct {
	mu     sync.Mutex
	status map[string]v1.SessionProcessStatus
	logger *logger.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(log *logger.Logger) *Tracker {
	return &Tracker{
		status: make(map[string]v1.SessionProcessStatus),
		logger: log.WithFields(zap.String("component", "process-tracker")),
	}
}

// Observe compares a full roster snapshot against the recorded statuses and
// returns the transitions it detects. Only the exact running-to-paused edge
// counts; duplicate status reports and every other pair are not transitions.
// Sessions absent from the roster are forgotten so a reused session id can
// never inherit stale state.
func (t *Tracker) Observe(processes []v1.SessionProcess) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var transitions []Transition
	seen := make(map[string]struct{}, len(processes))

	for _, proc := range processes {
		if proc.SessionID == "" {
			continue
		}
		seen[proc.SessionID] = struct{}{}

		prev, known := t.status[proc.SessionID]
		if known && prev == v1.SessionProcessRunning && proc.Status == v1.SessionProcessPaused {
			transitions = append(transitions, Transition{
				SessionID: proc.SessionID,
				From:      prev,
				To:        proc.Status,
			})
			t.logger.Debug("session paused",
				zap.String("session_id", proc.SessionID))
		}
		t.status[proc.SessionID] = proc.Status
	}

	for sessionID := range t.status {
		if _, ok := seen[sessionID]; !ok {
			delete(t.status, sessionID)
		}
	}

	return transitions
}

// Status returns the last recorded status for a session.
func (t *Tracker) Status(sessionID string) (v1.SessionProcessStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.status[sessionID]
	return s, ok
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.status)
}
