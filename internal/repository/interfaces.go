package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
)

// All repository interfaces in one file
type (
	// AppointmentRepository handles appointment persistence. Rows are never
	// physically deleted; cancellation and no-show are terminal statuses.
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)

		// FindScheduledBefore returns scheduled appointments overdue at
		// cutoff that are still eligible for auto no-show: not yet marked
		// and not superseded by a reschedule.
		FindScheduledBefore(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error)

		// MarkNoShow performs a conditional update claiming the row. It
		// returns false when the row was already marked or left the
		// scheduled status, making the mark idempotent across replicas.
		MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time, auto bool) (bool, error)

		// Reschedule stamps the lineage fields on the old row and inserts
		// the replacement in one transaction.
		Reschedule(ctx context.Context, old *model.Appointment, replacement *model.Appointment) error
	}

	// QueueRepository handles waiting-line entries.
	QueueRepository interface {
		// Create inserts the entry, assigning the next counter for the
		// scope inside the same transaction.
		Create(ctx context.Context, entry *model.QueueEntry, scope model.QueueScope) error
		Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error)
		Update(ctx context.Context, entry *model.QueueEntry) error

		// CountWaitingBefore counts waiting entries in scope created before
		// the given instant; this is the queue position of an entry created
		// at that instant.
		CountWaitingBefore(ctx context.Context, scope model.QueueScope, createdBefore time.Time) (int, error)

		// AvgServiceSeconds returns the historical average service time for
		// a service, and false when no completed history exists.
		AvgServiceSeconds(ctx context.Context, serviceID uuid.UUID) (float64, bool, error)

		// ListSamplesInRange returns completed entries joined with their
		// appointment grouping keys for wait-time reporting.
		ListSamplesInRange(ctx context.Context, filters *model.ReportFilters) ([]*model.QueueSample, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
