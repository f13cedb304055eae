package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCheckedIn AppointmentStatus = "checked_in"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeAppointment AppointmentType = "appointment"
	AppointmentTypeTurn        AppointmentType = "turn"
	AppointmentTypePublic      AppointmentType = "public"
)

type Appointment struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	ServiceID      uuid.UUID         `db:"service_id" json:"service_id"`
	BranchID       uuid.UUID         `db:"branch_id" json:"branch_id"`
	ServicePointID *uuid.UUID        `db:"service_point_id" json:"service_point_id,omitempty"`
	UserID         *uuid.UUID        `db:"user_id" json:"user_id,omitempty"`
	GuestName      *string           `db:"guest_name" json:"guest_name,omitempty"`
	GuestEmail     *string           `db:"guest_email" json:"guest_email,omitempty"`
	GuestPhone     *string           `db:"guest_phone" json:"guest_phone,omitempty"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Type           AppointmentType   `db:"type" json:"type"`
	ScheduledAt    time.Time         `db:"scheduled_at" json:"scheduled_at"`
	AttendedAt     *time.Time        `db:"attended_at" json:"attended_at,omitempty"`
	CancelReason   *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`

	NoShowMarkedAt     *time.Time `db:"no_show_marked_at" json:"no_show_marked_at,omitempty"`
	AutoMarkedAsNoShow bool       `db:"auto_marked_as_no_show" json:"auto_marked_as_no_show"`

	// Reschedule lineage. A reschedule closes the old row and opens a new
	// one pointing back via RescheduledFromID; the old row keeps its
	// lineage stamps and is excluded from no-show scans.
	RescheduledFromID   *uuid.UUID `db:"rescheduled_from_id" json:"rescheduled_from_id,omitempty"`
	RescheduledByID     *uuid.UUID `db:"rescheduled_by_id" json:"rescheduled_by_id,omitempty"`
	RescheduledAt       *time.Time `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
	RescheduledReason   *string    `db:"rescheduled_reason" json:"rescheduled_reason,omitempty"`
	OriginalScheduledAt *time.Time `db:"original_scheduled_at" json:"original_scheduled_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type CreateAppointmentRequest struct {
	ServiceID      string     `json:"service_id" validate:"required,uuid"`
	BranchID       string     `json:"branch_id" validate:"required,uuid"`
	ServicePointID *string    `json:"service_point_id" validate:"omitempty,uuid"`
	UserID         *string    `json:"user_id" validate:"omitempty,uuid"`
	GuestName      *string    `json:"guest_name" validate:"omitempty,max=200"`
	GuestEmail     *string    `json:"guest_email" validate:"omitempty,email"`
	GuestPhone     *string    `json:"guest_phone" validate:"omitempty,max=30"`
	Type           string     `json:"type" validate:"required,oneof=appointment turn public"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

type RescheduleRequest struct {
	NewTime time.Time `json:"new_time" validate:"required"`
	ActorID string    `json:"actor_id" validate:"required,uuid"`
	Reason  string    `json:"reason" validate:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type AppointmentFilters struct {
	BranchID       *uuid.UUID
	ServiceID      *uuid.UUID
	ServicePointID *uuid.UUID
	Status         AppointmentStatus
	From           time.Time
	To             time.Time
}
