package handler

import (
	syncapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/sync"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QueueHandler exposes the offline queue's status and controls.
type QueueHandler struct {
	BaseHandler
	queue *syncapp.Queue
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue *syncapp.Queue) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// RegisterRoutes registers queue and connectivity routes.
func (h *QueueHandler) RegisterRoutes(rg *gin.RouterGroup) {
	queue := rg.Group("/queue")
	{
		queue.GET("", h.List)
		queue.GET("/status", h.Status)
		queue.POST("/retry", h.RetryFailed)
		queue.DELETE("/actions/:id", h.Cancel)
	}
	rg.POST("/connectivity", h.SetConnectivity)
}

// ConnectivityRequest signals an online/offline transition from the UI's
// connectivity probe.
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// StatusResponse is the queue status badge payload.
type StatusResponse struct {
	Online bool           `json:"online"`
	Counts syncapp.Counts `json:"counts"`
}

// List returns a snapshot of the live queue, newest first.
func (h *QueueHandler) List(c *gin.Context) {
	h.Success(c, h.queue.Actions())
}

// Status returns connectivity and per-status action counts.
func (h *QueueHandler) Status(c *gin.Context) {
	h.Success(c, StatusResponse{
		Online: h.queue.Online(),
		Counts: h.queue.Counts(),
	})
}

// RetryFailed resets terminally failed actions to pending.
func (h *QueueHandler) RetryFailed(c *gin.Context) {
	reset := h.queue.RetryFailed(c.Request.Context())
	h.Success(c, gin.H{"reset": reset})
}

// Cancel withdraws a pending or failed action.
func (h *QueueHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	if err := h.queue.Cancel(c.Request.Context(), id); err != nil {
		h.DomainError(c, err)
		return
	}
	h.NoContent(c)
}

// SetConnectivity flips the queue between online and offline. Going online
// triggers an immediate replay of everything queued while offline.
func (h *QueueHandler) SetConnectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	h.queue.SetOnline(*req.Online)
	h.Success(c, gin.H{"online": h.queue.Online()})
}
