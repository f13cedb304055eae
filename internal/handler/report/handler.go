package report

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/service/report"
	"github.com/attendly/queue-api/pkg/httputil"
)

type Handler struct {
	waitTimes    *report.WaitTimeEngine
	appointments *report.AppointmentEngine
}

func NewHandler(waitTimes *report.WaitTimeEngine, appointments *report.AppointmentEngine) *Handler {
	return &Handler{waitTimes: waitTimes, appointments: appointments}
}

func (h *Handler) WaitTimes(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	result, err := h.waitTimes.WaitTimes(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) WaitTimeSummary(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	result, err := h.waitTimes.Summary(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) Appointments(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	result, err := h.appointments.Report(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, staffOnly gin.HandlerFunc) {
	reports := r.Group("/reports", staffOnly)
	{
		reports.GET("/wait-times", h.WaitTimes)
		reports.GET("/wait-times/summary", h.WaitTimeSummary)
		reports.GET("/appointments", h.Appointments)
	}
}

// parseFilters reads the mandatory date range and optional grouping keys
// from query parameters.
func parseFilters(c *gin.Context) (*model.ReportFilters, error) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return nil, fmt.Errorf("invalid or missing 'from' date: %w", err)
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return nil, fmt.Errorf("invalid or missing 'to' date: %w", err)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("'to' must be after 'from'")
	}

	filters := &model.ReportFilters{
		Range: model.DateRange{From: from, To: to},
	}

	if v := c.Query("branch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid branch ID: %w", err)
		}
		filters.BranchID = &id
	}
	if v := c.Query("service_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid service ID: %w", err)
		}
		filters.ServiceID = &id
	}
	if v := c.Query("service_point_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid service point ID: %w", err)
		}
		filters.ServicePointID = &id
	}

	return filters, nil
}
