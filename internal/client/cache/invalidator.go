package cache

import (
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/client"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

// InvalidationKeys maps one frame to the minimal set of cache key paths it
// makes stale. Kinds it does not recognize map to nothing, so new server
// event kinds never break the listener pipeline.
//
// The connect frame invalidates the most volatile views wholesale: nothing
// is replayed across reconnects, so anything cached while disconnected may
// be arbitrarily stale.
func InvalidationKeys(frame *stream.Frame) [][]string {
	switch frame.Kind {
	case stream.KindConnect:
		return [][]string{
			{"projects"},
			{"scheduler", "jobs"},
		}

	case stream.KindSessionListChanged:
		var p stream.SessionListChangedPayload
		if err := frame.ParsePayload(&p); err != nil {
			return nil
		}
		return [][]string{
			{"projects", p.ProjectID},
			{"sessions", "recent"},
		}

	case stream.KindSessionChanged:
		var p stream.SessionChangedPayload
		if err := frame.ParsePayload(&p); err != nil {
			return nil
		}
		return [][]string{
			{"projects", p.ProjectID, "sessions", p.SessionID},
		}

	case stream.KindAgentSessionChanged:
		// Addressed by (projectId, agentSessionId) only; there is no
		// session id segment in this key.
		var p stream.AgentSessionChangedPayload
		if err := frame.ParsePayload(&p); err != nil {
			return nil
		}
		return [][]string{
			{"projects", p.ProjectID, "agent-sessions", p.AgentSessionID},
		}

	case stream.KindSchedulerJobsChanged:
		// The job list is small; invalidate it whole regardless of which
		// job changed.
		return [][]string{
			{"scheduler", "jobs"},
		}
	}

	return nil
}

// Invalidator binds the invalidation mapping to a subscription manager and a
// store. It holds no state of its own.
type Invalidator struct {
	store  *Store
	logger *logger.Logger
}

// NewInvalidator creates an invalidator writing through to store.
func NewInvalidator(store *Store, log *logger.Logger) *Invalidator {
	return &Invalidator{
		store:  store,
		logger: log.WithFields(zap.String("component", "cache-invalidator")),
	}
}

// Bind registers one listener per mapped kind on the manager and returns a
// function that unregisters them all.
func (i *Invalidator) Bind(m *client.Manager) func() {
	kinds := []stream.Kind{
		stream.KindConnect,
		stream.KindSessionListChanged,
		stream.KindSessionChanged,
		stream.KindAgentSessionChanged,
		stream.KindSchedulerJobsChanged,
	}

	removes := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		removes = append(removes, m.AddEventListener(kind, i.handle))
	}
	return func() {
		for _, remove := range removes {
			remove()
		}
	}
}

func (i *Invalidator) handle(frame *stream.Frame) {
	for _, key := range InvalidationKeys(frame) {
		removed := i.store.InvalidatePrefix(key...)
		i.logger.Debug("invalidated cache",
			zap.String("kind", string(frame.Kind)),
			zap.Strings("key", key),
			zap.Int("removed", removed))
	}
}
