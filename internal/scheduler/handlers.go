package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

// Handlers exposes the scheduler job endpoints.
type Handlers struct {
	svc    *Service
	logger *logger.Logger
}

// NewHandlers creates HTTP handlers for the scheduler service.
func NewHandlers(svc *Service, log *logger.Logger) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "scheduler-handlers")),
	}
}

// RegisterRoutes adds scheduler routes to the router.
func (h *Handlers) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/scheduler")
	api.GET("/jobs", h.listJobs)
	api.POST("/jobs", h.createJob)
	api.DELETE("/jobs/:jobId", h.deleteJob)
}

func (h *Handlers) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.svc.List(c.Request.Context())})
}

func (h *Handlers) createJob(c *gin.Context) {
	var req v1.CreateSchedulerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handlers) deleteJob(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("jobId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
