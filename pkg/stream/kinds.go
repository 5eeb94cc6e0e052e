// Package stream defines the outbound event-stream protocol shared by the
// server-side stream controller and the client subscription manager. Each
// event is one typed frame; the first frame on every connection is always
// KindConnect.
package stream

// Kind identifies the type of an event frame.
type Kind string

const (
	// KindConnect is sent once, before anything else, on every new
	// connection. Clients resynchronize state when they receive it; missed
	// events are never replayed.
	KindConnect Kind = "connect"

	// KindHeartbeat carries no payload and only keeps intermediaries from
	// closing an idle connection.
	KindHeartbeat Kind = "heartbeat"

	KindSessionListChanged    Kind = "sessionListChanged"
	KindSessionChanged        Kind = "sessionChanged"
	KindAgentSessionChanged   Kind = "agentSessionChanged"
	KindSessionProcessChanged Kind = "sessionProcessChanged"
	KindPermissionRequested   Kind = "permissionRequested"
	KindSchedulerJobsChanged  Kind = "schedulerJobsChanged"
)

// ForwardedKinds lists the event kinds the stream controller forwards from
// the event bus. KindConnect and KindHeartbeat are connection-local and are
// produced by the controller itself.
func ForwardedKinds() []Kind {
	return []Kind{
		KindSessionListChanged,
		KindSessionChanged,
		KindAgentSessionChanged,
		KindSessionProcessChanged,
		KindPermissionRequested,
		KindSchedulerJobsChanged,
	}
}
