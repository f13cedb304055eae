package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
	apperrors "github.com/attendly/queue-api/pkg/errors"
)

func (r *queueRepository) Create(ctx context.Context, entry *model.QueueEntry, scope model.QueueScope) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Counter is scoped per branch+service; an advisory xact lock on the
	// scope serializes concurrent enqueues so the counter stays monotonic.
	lock := `SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`
	if _, err := tx.ExecContext(ctx, lock, scope.BranchID.String(), scope.ServiceID.String()); err != nil {
		return fmt.Errorf("failed to lock queue scope: %w", err)
	}

	next := `
		SELECT COALESCE(MAX(q.counter), 0) + 1
		FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE a.branch_id = $1 AND a.service_id = $2
	`
	if err := tx.GetContext(ctx, &entry.Counter, next, scope.BranchID, scope.ServiceID); err != nil {
		return fmt.Errorf("failed to get next counter: %w", err)
	}

	insert := `
		INSERT INTO queue_entries (id, appointment_id, counter, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, insert,
		entry.ID, entry.AppointmentID, entry.Counter, entry.Status, entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to create queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	query := `
		SELECT id, appointment_id, counter, status, created_at, called_at, completed_at
		FROM queue_entries
		WHERE id = $1
	`
	var entry model.QueueEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

func (r *queueRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error) {
	query := `
		SELECT id, appointment_id, counter, status, created_at, called_at, completed_at
		FROM queue_entries
		WHERE appointment_id = $1
	`
	var entry model.QueueEntry
	if err := r.db.GetContext(ctx, &entry, query, appointmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("queue entry", err)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

func (r *queueRepository) Update(ctx context.Context, entry *model.QueueEntry) error {
	query := `
		UPDATE queue_entries
		SET status = $1, called_at = $2, completed_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, entry.Status, entry.CalledAt, entry.CompletedAt, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("queue entry not found")
	}

	return nil
}

func (r *queueRepository) CountWaitingBefore(ctx context.Context, scope model.QueueScope, createdBefore time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE a.branch_id = $1
		AND a.service_id = $2
		AND q.status = $3
		AND q.created_at < $4
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query,
		scope.BranchID, scope.ServiceID, model.QueueStatusWaiting, createdBefore); err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	return count, nil
}

func (r *queueRepository) AvgServiceSeconds(ctx context.Context, serviceID uuid.UUID) (float64, bool, error) {
	query := `
		SELECT AVG(EXTRACT(EPOCH FROM (q.completed_at - q.called_at)))
		FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE a.service_id = $1
		AND q.status = $2
		AND q.called_at IS NOT NULL
		AND q.completed_at IS NOT NULL
	`
	var avg sql.NullFloat64
	err := r.db.GetContext(ctx, &avg, query, serviceID, model.QueueStatusComplete)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get average service time: %w", err)
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

func (r *queueRepository) ListSamplesInRange(ctx context.Context, filters *model.ReportFilters) ([]*model.QueueSample, error) {
	query := `
		SELECT q.id AS entry_id, a.branch_id, a.service_id, a.service_point_id,
			   q.created_at, q.called_at, q.completed_at
		FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE q.called_at IS NOT NULL
		AND q.completed_at IS NOT NULL
		AND q.completed_at >= $1
		AND q.completed_at <= $2
	`
	args := []interface{}{filters.Range.From, filters.Range.To}
	argCount := 3

	if filters.BranchID != nil {
		query += fmt.Sprintf(" AND a.branch_id = $%d", argCount)
		args = append(args, *filters.BranchID)
		argCount++
	}

	if filters.ServiceID != nil {
		query += fmt.Sprintf(" AND a.service_id = $%d", argCount)
		args = append(args, *filters.ServiceID)
		argCount++
	}

	if filters.ServicePointID != nil {
		query += fmt.Sprintf(" AND a.service_point_id = $%d", argCount)
		args = append(args, *filters.ServicePointID)
		argCount++
	}

	query += " ORDER BY q.completed_at ASC"

	var samples []*model.QueueSample
	if err := r.db.SelectContext(ctx, &samples, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list queue samples: %w", err)
	}
	return samples, nil
}
