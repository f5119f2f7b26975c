package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/giserh/videolectures-dl/internal/app"
	"github.com/giserh/videolectures-dl/internal/domain"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	queueMgr *app.QueueManager
	tool     domain.StreamDownloader
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager, tool domain.StreamDownloader) *HealthHandler {
	return &HealthHandler{
		queueMgr: queueMgr,
		tool:     tool,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running bool `json:"running"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: domain.Version,
	}
	response.Queue.Running = h.queueMgr.IsRunning()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready. The server is ready when the queue runs and
// rtmpdump can be started.
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue manager not running",
		})
		return
	}

	if err := h.tool.CheckToolAvailable(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
