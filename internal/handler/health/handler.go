package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	db      *sqlx.DB
	version string
}

func NewHandler(db *sqlx.DB, version string) *Handler {
	return &Handler{db: db, version: version}
}

func (h *Handler) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	ctx := c.Request.Context()
	if err := h.db.PingContext(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
}
