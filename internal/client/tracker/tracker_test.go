package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

func newTestTracker(t *testing.T) *Tracker {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return NewTracker(log)
}

func proc(id, sessionID string, status v1.SessionProcessStatus) v1.SessionProcess {
	return v1.SessionProcess{
		ID:        id,
		ProjectID: "p1",
		SessionID: sessionID,
		Status:    status,
	}
}

func TestObserveStatusSequences(t *testing.T) {
	tests := []struct {
		name     string
		statuses []v1.SessionProcessStatus
		want     int
	}{
		{"running then paused", []v1.SessionProcessStatus{v1.SessionProcessRunning, v1.SessionProcessPaused}, 1},
		{"paused twice", []v1.SessionProcessStatus{v1.SessionProcessPaused, v1.SessionProcessPaused}, 0},
		{"starting then running", []v1.SessionProcessStatus{v1.SessionProcessStarting, v1.SessionProcessRunning}, 0},
		{"starting then paused", []v1.SessionProcessStatus{v1.SessionProcessStarting, v1.SessionProcessPaused}, 0},
		{"running repeated then paused", []v1.SessionProcessStatus{v1.SessionProcessRunning, v1.SessionProcessRunning, v1.SessionProcessPaused}, 1},
		{"paused first observation", []v1.SessionProcessStatus{v1.SessionProcessPaused}, 0},
		{"pause resume pause", []v1.SessionProcessStatus{v1.SessionProcessRunning, v1.SessionProcessPaused, v1.SessionProcessRunning, v1.SessionProcessPaused}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(t)
			total := 0
			for _, status := range tt.statuses {
				total += len(tr.Observe([]v1.SessionProcess{proc("proc-1", "s1", status)}))
			}
			assert.Equal(t, tt.want, total)
		})
	}
}

func TestObserveKeysByStableSessionID(t *testing.T) {
	tr := newTestTracker(t)

	// Process ids churn across restarts; the edge must still be detected on
	// the session id.
	tr.Observe([]v1.SessionProcess{proc("proc-old", "s1", v1.SessionProcessRunning)})
	transitions := tr.Observe([]v1.SessionProcess{proc("proc-new", "s1", v1.SessionProcessPaused)})

	require.Len(t, transitions, 1)
	assert.Equal(t, "s1", transitions[0].SessionID)
	assert.Equal(t, v1.SessionProcessRunning, transitions[0].From)
	assert.Equal(t, v1.SessionProcessPaused, transitions[0].To)
}

func TestObserveMultipleSessions(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe([]v1.SessionProcess{
		proc("a", "s1", v1.SessionProcessRunning),
		proc("b", "s2", v1.SessionProcessRunning),
		proc("c", "s3", v1.SessionProcessStarting),
	})
	transitions := tr.Observe([]v1.SessionProcess{
		proc("a", "s1", v1.SessionProcessPaused),
		proc("b", "s2", v1.SessionProcessRunning),
		proc("c", "s3", v1.SessionProcessPaused),
	})

	require.Len(t, transitions, 1)
	assert.Equal(t, "s1", transitions[0].SessionID)
}

func TestObservePrunesAbsentSessions(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe([]v1.SessionProcess{proc("a", "s1", v1.SessionProcessRunning)})
	assert.Equal(t, 1, tr.Len())

	// Session disappears from the roster; its state must be forgotten.
	tr.Observe(nil)
	assert.Equal(t, 0, tr.Len())
	_, known := tr.Status("s1")
	assert.False(t, known)

	// The same session id coming back paused is a first observation, not a
	// transition from the stale running state.
	transitions := tr.Observe([]v1.SessionProcess{proc("b", "s1", v1.SessionProcessPaused)})
	assert.Empty(t, transitions)
}

func TestObserveIgnoresEmptySessionID(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe([]v1.SessionProcess{proc("a", "", v1.SessionProcessRunning)})
	assert.Equal(t, 0, tr.Len())

	transitions := tr.Observe([]v1.SessionProcess{proc("a", "", v1.SessionProcessPaused)})
	assert.Empty(t, transitions)
}
