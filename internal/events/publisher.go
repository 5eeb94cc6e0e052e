package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/pkg/stream"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

// Publisher emits client-visible events on behalf of a service. Publish
// failures are logged, never returned: events are best-effort UI signals and
// no caller should fail because one could not be delivered.
type Publisher struct {
	bus    bus.EventBus
	source string
	logger *logger.Logger
}

// NewPublisher creates a Publisher attributing events to source.
func NewPublisher(eventBus bus.EventBus, source string, log *logger.Logger) *Publisher {
	return &Publisher{
		bus:    eventBus,
		source: source,
		logger: log.WithFields(zap.String("component", "event-publisher")),
	}
}

func (p *Publisher) publish(ctx context.Context, subject, eventType string, data interface{}) {
	if p.bus == nil {
		return
	}
	event := bus.NewEvent(eventType, p.source, data)
	if err := p.bus.Publish(ctx, subject, event); err != nil {
		p.logger.Error("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// SessionListChanged signals that a project's session list changed.
func (p *Publisher) SessionListChanged(ctx context.Context, projectID string) {
	p.publish(ctx, SessionListChanged, SessionListChanged, stream.SessionListChangedPayload{
		ProjectID: projectID,
	})
}

// SessionChanged signals that one session's detail changed.
func (p *Publisher) SessionChanged(ctx context.Context, projectID, sessionID string) {
	p.publish(ctx, SessionChanged, SessionChanged, stream.SessionChangedPayload{
		ProjectID: projectID,
		SessionID: sessionID,
	})
}

// AgentSessionChanged signals that an agent session changed.
func (p *Publisher) AgentSessionChanged(ctx context.Context, projectID, agentSessionID string) {
	p.publish(ctx, AgentSessionChanged, AgentSessionChanged, stream.AgentSessionChangedPayload{
		ProjectID:      projectID,
		AgentSessionID: agentSessionID,
	})
}

// SessionProcessChanged publishes the full current roster.
func (p *Publisher) SessionProcessChanged(ctx context.Context, processes []v1.SessionProcess) {
	p.publish(ctx, SessionProcessChanged, SessionProcessChanged, stream.SessionProcessChangedPayload{
		Processes: processes,
	})
}

// PermissionRequested publishes a permission prompt raised by a session.
func (p *Publisher) PermissionRequested(ctx context.Context, req v1.PermissionRequest) {
	p.publish(ctx, PermissionRequested, PermissionRequested, stream.PermissionRequestedPayload{
		PermissionRequest: req,
	})
}

// SchedulerJobsChanged signals that the scheduler job list changed.
// deletedJobID is empty unless the change was a deletion.
func (p *Publisher) SchedulerJobsChanged(ctx context.Context, deletedJobID string) {
	p.publish(ctx, SchedulerJobsChanged, SchedulerJobsChanged, stream.SchedulerJobsChangedPayload{
		DeletedJobID: deletedJobID,
	})
}
