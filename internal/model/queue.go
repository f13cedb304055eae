package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusWaiting  QueueStatus = "waiting"
	QueueStatusServing  QueueStatus = "serving"
	QueueStatusComplete QueueStatus = "complete"
)

// QueueEntry is one position in a waiting line, 1:1 with the appointment
// that entered the queue. Status only advances waiting -> serving -> complete.
type QueueEntry struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	AppointmentID uuid.UUID   `db:"appointment_id" json:"appointment_id"`
	Counter       int         `db:"counter" json:"counter"`
	Status        QueueStatus `db:"status" json:"status"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	CalledAt      *time.Time  `db:"called_at" json:"called_at,omitempty"`
	CompletedAt   *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}

// QueueScope identifies the counter sequence an entry belongs to.
type QueueScope struct {
	BranchID  uuid.UUID
	ServiceID uuid.UUID
}

// QueuePosition is returned to the caller on enqueue.
type QueuePosition struct {
	Entry         *QueueEntry   `json:"entry"`
	Position      int           `json:"position"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

// QueueSample is a completed queue entry joined with the grouping keys of
// its appointment, as read back for wait-time reporting.
type QueueSample struct {
	EntryID        uuid.UUID  `db:"entry_id"`
	BranchID       uuid.UUID  `db:"branch_id"`
	ServiceID      uuid.UUID  `db:"service_id"`
	ServicePointID *uuid.UUID `db:"service_point_id"`
	CreatedAt      time.Time  `db:"created_at"`
	CalledAt       *time.Time `db:"called_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}
