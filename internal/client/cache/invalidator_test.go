package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/stream"
)

func mustFrame(t *testing.T, kind stream.Kind, payload interface{}) *stream.Frame {
	t.Helper()
	frame, err := stream.NewFrame(kind, payload)
	require.NoError(t, err)
	return frame
}

func TestInvalidationKeys(t *testing.T) {
	tests := []struct {
		name  string
		frame *stream.Frame
		want  [][]string
	}{
		{
			name:  "connect invalidates volatile roots",
			frame: mustFrame(t, stream.KindConnect, stream.ConnectPayload{ConnectionID: "c1"}),
			want: [][]string{
				{"projects"},
				{"scheduler", "jobs"},
			},
		},
		{
			name: "session list change invalidates project and recents",
			frame: mustFrame(t, stream.KindSessionListChanged,
				stream.SessionListChangedPayload{ProjectID: "p1"}),
			want: [][]string{
				{"projects", "p1"},
				{"sessions", "recent"},
			},
		},
		{
			name: "session change invalidates exactly one session",
			frame: mustFrame(t, stream.KindSessionChanged,
				stream.SessionChangedPayload{ProjectID: "p1", SessionID: "s1"}),
			want: [][]string{
				{"projects", "p1", "sessions", "s1"},
			},
		},
		{
			name: "agent session change is keyed without a session segment",
			frame: mustFrame(t, stream.KindAgentSessionChanged,
				stream.AgentSessionChangedPayload{
					ProjectID:      "p1",
					AgentSessionID: "a1",
				}),
			want: [][]string{
				{"projects", "p1", "agent-sessions", "a1"},
			},
		},
		{
			name:  "scheduler job change invalidates the job list whole",
			frame: mustFrame(t, stream.KindSchedulerJobsChanged, stream.SchedulerJobsChangedPayload{}),
			want: [][]string{
				{"scheduler", "jobs"},
			},
		},
		{
			name:  "heartbeat invalidates nothing",
			frame: mustFrame(t, stream.KindHeartbeat, nil),
			want:  nil,
		},
		{
			name:  "process change invalidates nothing",
			frame: mustFrame(t, stream.KindSessionProcessChanged, nil),
			want:  nil,
		},
		{
			name:  "unknown kind invalidates nothing",
			frame: mustFrame(t, stream.Kind("somethingNew"), nil),
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InvalidationKeys(tt.frame))
		})
	}
}

func TestInvalidationIsMinimal(t *testing.T) {
	store := NewStore()
	store.Set("view", "projects", "p1", "sessions", "s1")
	store.Set("view", "projects", "p1", "sessions", "s2")
	store.Set("view", "projects", "p2", "sessions", "s3")
	store.Set("view", "projects", "p1", "agent-sessions", "a1")

	frame := mustFrame(t, stream.KindSessionChanged,
		stream.SessionChangedPayload{ProjectID: "p1", SessionID: "s1"})
	for _, key := range InvalidationKeys(frame) {
		store.InvalidatePrefix(key...)
	}

	_, ok := store.Get("projects", "p1", "sessions", "s1")
	assert.False(t, ok, "changed session must be invalidated")

	_, ok = store.Get("projects", "p1", "sessions", "s2")
	assert.True(t, ok, "sibling session must survive")
	_, ok = store.Get("projects", "p2", "sessions", "s3")
	assert.True(t, ok, "other project must survive")
	_, ok = store.Get("projects", "p1", "agent-sessions", "a1")
	assert.True(t, ok, "agent session entry must survive a plain session change")
}

func TestStorePrefixInvalidation(t *testing.T) {
	store := NewStore()
	store.Set(1, "projects")
	store.Set(2, "projects", "p1")
	store.Set(3, "projects", "p1", "sessions", "s1")
	store.Set(4, "projectsarchive")

	removed := store.InvalidatePrefix("projects")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, store.Len())

	// Prefix matching is per path segment, not per character.
	_, ok := store.Get("projectsarchive")
	assert.True(t, ok)
}
