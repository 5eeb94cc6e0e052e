package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

// Handlers exposes the session roster and dispatch endpoints.
type Handlers struct {
	svc    *Service
	logger *logger.Logger
}

// NewHandlers creates HTTP handlers for the session service.
func NewHandlers(svc *Service, log *logger.Logger) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "session-handlers")),
	}
}

// RegisterRoutes adds session routes to the router.
func (h *Handlers) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	api.GET("/session-processes", h.listProcesses)
	api.POST("/session-processes", h.upsertProcess)
	api.PATCH("/session-processes/:sessionId/status", h.setStatus)
	api.DELETE("/session-processes/:sessionId", h.removeProcess)
	api.POST("/sessions/:sessionId/messages", h.dispatch)
	api.POST("/sessions/:sessionId/permission-request", h.requestPermission)
}

// listProcesses is the resync endpoint clients call after every connect.
func (h *Handlers) listProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, v1.SessionProcessList{
		Processes: h.svc.List(c.Request.Context()),
	})
}

type upsertProcessRequest struct {
	ProjectID      string                  `json:"projectId" binding:"required"`
	SessionID      string                  `json:"sessionId" binding:"required"`
	Status         v1.SessionProcessStatus `json:"status" binding:"required"`
	PermissionMode string                  `json:"permissionMode"`
}

func (h *Handlers) upsertProcess(c *gin.Context) {
	var req upsertProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	proc, err := h.svc.Upsert(c.Request.Context(), req.ProjectID, req.SessionID, req.Status, req.PermissionMode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, proc)
}

type setStatusRequest struct {
	Status v1.SessionProcessStatus `json:"status" binding:"required"`
}

func (h *Handlers) setStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SetStatus(c.Request.Context(), c.Param("sessionId"), req.Status); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) removeProcess(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("sessionId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) dispatch(c *gin.Context) {
	var req v1.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Dispatch(c.Request.Context(), c.Param("sessionId"), req); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type permissionRequestBody struct {
	ToolName string `json:"toolName" binding:"required"`
	Input    string `json:"input"`
}

func (h *Handlers) requestPermission(c *gin.Context) {
	var body permissionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.svc.RequestPermission(c.Request.Context(), c.Param("sessionId"), body.ToolName, body.Input)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}
