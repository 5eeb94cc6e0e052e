package stream

import (
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

// ConnectPayload is attached to the initial connect frame.
type ConnectPayload struct {
	ConnectionID string `json:"connectionId"`
}

// SessionListChangedPayload signals that the session list of a project
// changed (session created, deleted, or reordered).
type SessionListChangedPayload struct {
	ProjectID string `json:"projectId"`
}

// SessionChangedPayload signals that a single session's detail changed.
type SessionChangedPayload struct {
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}

// AgentSessionChangedPayload signals that an agent session's transcript or
// metadata changed. Addressed by (projectId, agentSessionId) only.
type AgentSessionChangedPayload struct {
	ProjectID      string `json:"projectId"`
	AgentSessionID string `json:"agentSessionId"`
}

// SessionProcessChangedPayload carries the full current roster of session
// processes, not a delta.
type SessionProcessChangedPayload struct {
	Processes []v1.SessionProcess `json:"processes"`
}

// PermissionRequestedPayload carries a permission prompt raised by a session.
type PermissionRequestedPayload struct {
	PermissionRequest v1.PermissionRequest `json:"permissionRequest"`
}

// SchedulerJobsChangedPayload signals that the scheduler job list changed.
// DeletedJobID is set only when the change was a deletion.
type SchedulerJobsChangedPayload struct {
	DeletedJobID string `json:"deletedJobId,omitempty"`
}
