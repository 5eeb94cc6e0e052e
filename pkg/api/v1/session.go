package v1

import "time"

// SessionProcessStatus represents the lifecycle status of a session process.
type SessionProcessStatus string

const (
	SessionProcessStarting SessionProcessStatus = "starting"
	SessionProcessPending  SessionProcessStatus = "pending"
	SessionProcessRunning  SessionProcessStatus = "running"
	SessionProcessPaused   SessionProcessStatus = "paused"
)

// SessionProcess is the public shape of one agent session process.
//
// ID changes whenever a session is resumed or restarted; SessionID is stable
// across restarts. Anything that tracks a session over time must key on
// SessionID, never on ID.
type SessionProcess struct {
	ID             string               `json:"id"`
	ProjectID      string               `json:"projectId"`
	SessionID      string               `json:"sessionId"`
	Status         SessionProcessStatus `json:"status"`
	PermissionMode string               `json:"permissionMode"`
}

// PermissionRequest is a permission prompt raised by a running session.
type PermissionRequest struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	ToolName  string    `json:"toolName"`
	Input     string    `json:"input,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DispatchMessage is one user message sent to a session.
type DispatchMessage struct {
	Text     string    `json:"text"`
	QueuedAt time.Time `json:"queuedAt,omitempty"`
}

// DispatchRequest sends a batch of messages to a session in one call.
// Messages are delivered in slice order. PermissionMode, when set, is applied
// to the session before the messages run.
type DispatchRequest struct {
	Messages       []DispatchMessage `json:"messages" binding:"required,min=1"`
	PermissionMode string            `json:"permissionMode,omitempty"`
}

// SessionProcessList is the roster returned by the resync endpoint.
type SessionProcessList struct {
	Processes []SessionProcess `json:"processes"`
}
