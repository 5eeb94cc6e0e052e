// Package events provides event subjects and publish helpers for the
// agentdeck event system.
package events

import "github.com/agentdeck/agentdeck/pkg/stream"

// Bus subjects for client-visible state changes. The stream controller
// forwards each of these to connected clients as a typed frame.
const (
	SessionListChanged    = "session.list.changed"
	SessionChanged        = "session.changed"
	AgentSessionChanged   = "agent_session.changed"
	SessionProcessChanged = "session.process.changed"
	PermissionRequested   = "permission.requested"
	SchedulerJobsChanged  = "scheduler.jobs.changed"
)

// SubjectKinds maps each forwarded bus subject to its stream frame kind.
func SubjectKinds() map[string]stream.Kind {
	return map[string]stream.Kind{
		SessionListChanged:    stream.KindSessionListChanged,
		SessionChanged:        stream.KindSessionChanged,
		AgentSessionChanged:   stream.KindAgentSessionChanged,
		SessionProcessChanged: stream.KindSessionProcessChanged,
		PermissionRequested:   stream.KindPermissionRequested,
		SchedulerJobsChanged:  stream.KindSchedulerJobsChanged,
	}
}
