package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/service/queue"
	"github.com/attendly/queue-api/pkg/errors"
)

type Handler struct {
	service *queue.Service
}

func NewHandler(service *queue.Service) *Handler {
	return &Handler{service: service}
}

type enqueueRequest struct {
	AppointmentID string `json:"appointment_id" binding:"required,uuid"`
}

func (h *Handler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid appointment ID"})
		return
	}

	position, err := h.service.Enqueue(c.Request.Context(), appointmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": position})
}

func (h *Handler) Call(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid queue entry ID"})
		return
	}

	entry, err := h.service.Call(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": entry})
}

func (h *Handler) Finish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid queue entry ID"})
		return
	}

	entry, err := h.service.Finish(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": entry})
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, staffOnly gin.HandlerFunc) {
	entries := r.Group("/queue")
	{
		entries.POST("", h.Enqueue)
		entries.POST("/:id/call", staffOnly, h.Call)
		entries.POST("/:id/finish", staffOnly, h.Finish)
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.IsInvalidTransition(err), errors.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": err.Error()})
	case errors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
	}
}
