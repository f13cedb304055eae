package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Lifecycle event types published through the outbox.
const (
	EventAppointmentCheckedIn   = "appointment.checked_in"
	EventAppointmentCompleted   = "appointment.completed"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentNoShow      = "appointment.no_show"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventQueueCalled            = "queue.called"
	EventQueueCompleted         = "queue.completed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
}
