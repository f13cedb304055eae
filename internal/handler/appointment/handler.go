package appointment

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/service/appointment"
	"github.com/attendly/queue-api/pkg/errors"
	"github.com/attendly/queue-api/pkg/validator"
)

type Handler struct {
	service   *appointment.Service
	validator *validator.Validator
}

func NewHandler(service *appointment.Service, validator *validator.Validator) *Handler {
	return &Handler{service: service, validator: validator}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	apt, err := buildAppointment(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if err := h.service.Create(c.Request.Context(), apt); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": apt})
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid appointment ID"})
		return
	}

	apt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	appointments, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": appointments})
}

func (h *Handler) CheckIn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid appointment ID"})
		return
	}

	apt, err := h.service.CheckIn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}

func (h *Handler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid appointment ID"})
		return
	}

	apt, err := h.service.Complete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid appointment ID"})
		return
	}

	var req model.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	apt, err := h.service.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": apt})
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid appointment ID"})
		return
	}

	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid actor ID"})
		return
	}

	replacement, err := h.service.Reschedule(c.Request.Context(), id, req.NewTime, actorID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": replacement})
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, staffOnly gin.HandlerFunc) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/checkin", staffOnly, h.CheckIn)
		appointments.POST("/:id/complete", staffOnly, h.Complete)
		appointments.POST("/:id/cancel", staffOnly, h.Cancel)
		appointments.POST("/:id/reschedule", staffOnly, h.Reschedule)
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.IsInvalidTransition(err):
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": err.Error()})
	case errors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
	}
}

func parseFilters(c *gin.Context) (*model.AppointmentFilters, error) {
	filters := &model.AppointmentFilters{}

	if v := c.Query("branch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		filters.BranchID = &id
	}
	if v := c.Query("service_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		filters.ServiceID = &id
	}
	if v := c.Query("service_point_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		filters.ServicePointID = &id
	}
	if v := c.Query("status"); v != "" {
		filters.Status = model.AppointmentStatus(v)
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		filters.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		filters.To = t
	}

	return filters, nil
}

func buildAppointment(req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		return nil, err
	}
	branchID, err := uuid.Parse(req.BranchID)
	if err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		ServiceID:  serviceID,
		BranchID:   branchID,
		Type:       model.AppointmentType(req.Type),
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		GuestPhone: req.GuestPhone,
	}

	if req.ServicePointID != nil {
		spID, err := uuid.Parse(*req.ServicePointID)
		if err != nil {
			return nil, err
		}
		apt.ServicePointID = &spID
	}
	if req.UserID != nil {
		userID, err := uuid.Parse(*req.UserID)
		if err != nil {
			return nil, err
		}
		apt.UserID = &userID
	}
	if req.ScheduledAt != nil {
		apt.ScheduledAt = *req.ScheduledAt
	} else {
		// Walk-in turns queue immediately.
		apt.ScheduledAt = time.Now()
	}

	return apt, nil
}
