package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attendly/queue-api/internal/worker"
	"github.com/attendly/queue-api/pkg/httputil"
)

// Handler exposes runtime control of the no-show scheduler.
type Handler struct {
	scheduler *worker.NoShowScheduler
}

func NewHandler(scheduler *worker.NoShowScheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

func (h *Handler) GetStats(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.scheduler.GetStats())
}

func (h *Handler) GetConfig(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.scheduler.GetConfig())
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var update worker.NoShowConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if err := h.scheduler.UpdateConfig(update); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, h.scheduler.GetConfig())
}

func (h *Handler) ExecuteManually(c *gin.Context) {
	marked, err := h.scheduler.ExecuteManually(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"marked": marked})
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, staffOnly gin.HandlerFunc) {
	sched := r.Group("/scheduler", staffOnly)
	{
		sched.GET("/stats", h.GetStats)
		sched.GET("/config", h.GetConfig)
		sched.PUT("/config", h.UpdateConfig)
		sched.POST("/run", h.ExecuteManually)
	}
}
