package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
)

const appointmentColumns = `
	id, service_id, branch_id, service_point_id, user_id,
	guest_name, guest_email, guest_phone,
	status, type, scheduled_at, attended_at, cancel_reason,
	no_show_marked_at, auto_marked_as_no_show,
	rescheduled_from_id, rescheduled_by_id, rescheduled_at,
	rescheduled_reason, original_scheduled_at,
	created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, service_id, branch_id, service_point_id, user_id,
			guest_name, guest_email, guest_phone,
			status, type, scheduled_at,
			rescheduled_from_id, created_at, updated_at
		) VALUES (
			:id, :service_id, :branch_id, :service_point_id, :user_id,
			:guest_name, :guest_email, :guest_phone,
			:status, :type, :scheduled_at,
			:rescheduled_from_id, :created_at, :updated_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET status = :status,
			attended_at = :attended_at,
			cancel_reason = :cancel_reason,
			no_show_marked_at = :no_show_marked_at,
			auto_marked_as_no_show = :auto_marked_as_no_show,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, appointment)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("appointment not found")
	}

	return nil
}

func buildAppointmentListQuery(filters *model.AppointmentFilters) (string, []interface{}) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	// Date bounds are optional on the listing; an unset bound must not
	// filter on the zero time.
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}

	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at <= $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	if filters.BranchID != nil {
		query += fmt.Sprintf(" AND branch_id = $%d", argCount)
		args = append(args, *filters.BranchID)
		argCount++
	}

	if filters.ServiceID != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argCount)
		args = append(args, *filters.ServiceID)
		argCount++
	}

	if filters.ServicePointID != nil {
		query += fmt.Sprintf(" AND service_point_id = $%d", argCount)
		args = append(args, *filters.ServicePointID)
		argCount++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	query += " ORDER BY scheduled_at ASC"
	return query, args
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query, args := buildAppointmentListQuery(filters)

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) FindScheduledBefore(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error) {
	// Superseded rows keep status=scheduled; lineage excludes them here.
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = $1
		AND scheduled_at < $2
		AND no_show_marked_at IS NULL
		AND rescheduled_at IS NULL
		ORDER BY scheduled_at ASC
	`
	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, model.AppointmentStatusScheduled, cutoff); err != nil {
		return nil, fmt.Errorf("failed to find overdue appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time, auto bool) (bool, error) {
	// Conditional claim: safe under concurrent schedulers, second mark is
	// a no-op.
	query := `
		UPDATE appointments
		SET status = $1,
			no_show_marked_at = $2,
			auto_marked_as_no_show = $3,
			updated_at = $2
		WHERE id = $4
		AND status = $5
		AND no_show_marked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		model.AppointmentStatusNoShow, at, auto, id, model.AppointmentStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("failed to mark appointment as no-show: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *appointmentRepository) Reschedule(ctx context.Context, old *model.Appointment, replacement *model.Appointment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lineage := `
		UPDATE appointments
		SET rescheduled_by_id = $1,
			rescheduled_at = $2,
			rescheduled_reason = $3,
			original_scheduled_at = $4,
			updated_at = $2
		WHERE id = $5 AND rescheduled_at IS NULL
	`
	result, err := tx.ExecContext(ctx, lineage,
		old.RescheduledByID, old.RescheduledAt, old.RescheduledReason,
		old.OriginalScheduledAt, old.ID)
	if err != nil {
		return fmt.Errorf("failed to stamp reschedule lineage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("appointment already rescheduled")
	}

	insert := `
		INSERT INTO appointments (
			id, service_id, branch_id, service_point_id, user_id,
			guest_name, guest_email, guest_phone,
			status, type, scheduled_at,
			rescheduled_from_id, created_at, updated_at
		) VALUES (
			:id, :service_id, :branch_id, :service_point_id, :user_id,
			:guest_name, :guest_email, :guest_phone,
			:status, :type, :scheduled_at,
			:rescheduled_from_id, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, insert, replacement); err != nil {
		return fmt.Errorf("failed to create replacement appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reschedule: %w", err)
	}
	return nil
}
