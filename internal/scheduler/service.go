// Package scheduler tracks scheduled prompt jobs. Job persistence and
// execution live elsewhere; this service owns the job list the UI shows and
// emits a change event whenever it moves.
package scheduler

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

// Service holds the in-memory scheduler job list.
type Service struct {
	mu        sync.RWMutex
	jobs      map[string]*v1.SchedulerJob
	publisher *events.Publisher
	logger    *logger.Logger
}

// NewService creates a scheduler job service.
func NewService(publisher *events.Publisher, log *logger.Logger) *Service {
	return &Service{
		jobs:      make(map[string]*v1.SchedulerJob),
		publisher: publisher,
		logger:    log.WithFields(zap.String("component", "scheduler-service")),
	}
}

// List returns all jobs ordered by creation time.
func (s *Service) List(ctx context.Context) []v1.SchedulerJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.SchedulerJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Create registers a new job and announces the change.
func (s *Service) Create(ctx context.Context, req v1.CreateSchedulerJobRequest) (v1.SchedulerJob, error) {
	if req.SessionID == "" || req.Prompt == "" || req.Schedule == "" {
		return v1.SchedulerJob{}, fmt.Errorf("sessionId, prompt, and schedule are required")
	}

	job := &v1.SchedulerJob{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Prompt:    req.Prompt,
		Schedule:  req.Schedule,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("scheduler job created",
		zap.String("job_id", job.ID),
		zap.String("session_id", job.SessionID))

	s.publisher.SchedulerJobsChanged(ctx, "")
	return *job, nil
}

// Delete removes a job; the change event carries the deleted id.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	_, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no scheduler job %s", jobID)
	}
	delete(s.jobs, jobID)
	s.mu.Unlock()

	s.logger.Info("scheduler job deleted", zap.String("job_id", jobID))

	s.publisher.SchedulerJobsChanged(ctx, jobID)
	return nil
}
