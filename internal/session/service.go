// Package session implements the session-process roster and message dispatch
// consumed by the event stream. Process spawning itself lives elsewhere; this
// service tracks the public roster, applies dispatches, and re-emits state
// changes through the event bus.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

// Service holds the in-memory session-process roster, keyed by the stable
// session id. Process ids churn: every resume or restart assigns a new one.
type Service struct {
	mu        sync.RWMutex
	processes map[string]*v1.SessionProcess // sessionID -> process
	publisher *events.Publisher
	logger    *logger.Logger
}

// NewService creates a session roster service.
func NewService(publisher *events.Publisher, log *logger.Logger) *Service {
	return &Service{
		processes: make(map[string]*v1.SessionProcess),
		publisher: publisher,
		logger:    log.WithFields(zap.String("component", "session-service")),
	}
}

// List returns the full current roster, ordered by session id.
func (s *Service) List(ctx context.Context) []v1.SessionProcess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() []v1.SessionProcess {
	out := make([]v1.SessionProcess, 0, len(s.processes))
	for _, p := range s.processes {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Upsert registers or restarts the process for a session. A new process id is
// assigned on every call; the session id is the stable identity.
func (s *Service) Upsert(ctx context.Context, projectID, sessionID string, status v1.SessionProcessStatus, permissionMode string) (v1.SessionProcess, error) {
	if sessionID == "" {
		return v1.SessionProcess{}, fmt.Errorf("session id is required")
	}
	if !validStatus(status) {
		return v1.SessionProcess{}, fmt.Errorf("invalid status %q", status)
	}

	s.mu.Lock()
	proc := &v1.SessionProcess{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		SessionID:      sessionID,
		Status:         status,
		PermissionMode: permissionMode,
	}
	_, existed := s.processes[sessionID]
	s.processes[sessionID] = proc
	roster := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("session process upserted",
		zap.String("session_id", sessionID),
		zap.String("process_id", proc.ID),
		zap.String("status", string(status)))

	s.publisher.SessionProcessChanged(ctx, roster)
	if !existed {
		s.publisher.SessionListChanged(ctx, projectID)
	}
	return *proc, nil
}

// SetStatus updates the status of a session's process and republishes the
// roster.
func (s *Service) SetStatus(ctx context.Context, sessionID string, status v1.SessionProcessStatus) error {
	if !validStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	s.mu.Lock()
	proc, ok := s.processes[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no process for session %s", sessionID)
	}
	proc.Status = status
	roster := s.snapshotLocked()
	projectID := proc.ProjectID
	s.mu.Unlock()

	s.logger.Info("session process status changed",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)))

	s.publisher.SessionProcessChanged(ctx, roster)
	s.publisher.SessionChanged(ctx, projectID, sessionID)
	return nil
}

// Remove drops a session's process from the roster (process ended).
func (s *Service) Remove(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	proc, ok := s.processes[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no process for session %s", sessionID)
	}
	delete(s.processes, sessionID)
	roster := s.snapshotLocked()
	projectID := proc.ProjectID
	s.mu.Unlock()

	s.logger.Info("session process removed", zap.String("session_id", sessionID))

	s.publisher.SessionProcessChanged(ctx, roster)
	s.publisher.SessionListChanged(ctx, projectID)
	return nil
}

// Dispatch delivers a batch of user messages to a session. A paused session
// resumes: it gets a fresh process id and flips to running before the roster
// is republished. An optional permission mode in the request is applied
// first.
func (s *Service) Dispatch(ctx context.Context, sessionID string, req v1.DispatchRequest) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("dispatch requires at least one message")
	}

	s.mu.Lock()
	proc, ok := s.processes[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no process for session %s", sessionID)
	}
	if req.PermissionMode != "" {
		proc.PermissionMode = req.PermissionMode
	}
	if proc.Status == v1.SessionProcessPaused {
		proc.ID = uuid.New().String()
		proc.Status = v1.SessionProcessRunning
	}
	roster := s.snapshotLocked()
	projectID := proc.ProjectID
	s.mu.Unlock()

	s.logger.Info("dispatched messages to session",
		zap.String("session_id", sessionID),
		zap.Int("message_count", len(req.Messages)))

	s.publisher.SessionProcessChanged(ctx, roster)
	s.publisher.SessionChanged(ctx, projectID, sessionID)
	return nil
}

// RequestPermission records a permission prompt raised by a session and
// publishes it to connected clients.
func (s *Service) RequestPermission(ctx context.Context, sessionID, toolName, input string) (v1.PermissionRequest, error) {
	s.mu.RLock()
	_, ok := s.processes[sessionID]
	s.mu.RUnlock()
	if !ok {
		return v1.PermissionRequest{}, fmt.Errorf("no process for session %s", sessionID)
	}

	req := v1.PermissionRequest{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ToolName:  toolName,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}

	s.logger.Info("permission requested",
		zap.String("session_id", sessionID),
		zap.String("tool", toolName))

	s.publisher.PermissionRequested(ctx, req)
	return req, nil
}

func validStatus(status v1.SessionProcessStatus) bool {
	switch status {
	case v1.SessionProcessStarting, v1.SessionProcessPending, v1.SessionProcessRunning, v1.SessionProcessPaused:
		return true
	}
	return false
}
