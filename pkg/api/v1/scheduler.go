package v1

import "time"

// SchedulerJob is a scheduled prompt run against a session.
type SchedulerJob struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Prompt    string    `json:"prompt"`
	Schedule  string    `json:"schedule"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateSchedulerJobRequest creates a new scheduled job.
type CreateSchedulerJobRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Prompt    string `json:"prompt" binding:"required"`
	Schedule  string `json:"schedule" binding:"required"`
}
