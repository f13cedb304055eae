package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/email"
	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/repository"
	"github.com/attendly/queue-api/pkg/clock"
	"github.com/attendly/queue-api/pkg/errors"
	"github.com/attendly/queue-api/pkg/logger"
)

// Service enforces the appointment status lifecycle. All mutation paths,
// staff actions and the no-show scheduler alike, go through these
// transition functions so the invariants hold in one place.
type Service struct {
	repo     repository.AppointmentRepository
	outbox   repository.OutboxRepository
	notifier email.Notifier
	clock    clock.Clock
	logger   *logger.Logger
}

func NewService(
	repo repository.AppointmentRepository,
	outbox repository.OutboxRepository,
	notifier email.Notifier,
	clk clock.Clock,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		outbox:   outbox,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

func (s *Service) Create(ctx context.Context, apt *model.Appointment) error {
	if err := s.validateAppointment(apt); err != nil {
		return errors.NewBadRequest("invalid appointment", err)
	}

	now := s.clock.Now()
	apt.ID = uuid.New()
	apt.Status = model.AppointmentStatusScheduled
	apt.CreatedAt = now
	apt.UpdatedAt = now

	if err := s.repo.Create(ctx, apt); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return apt, nil
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// CheckIn moves a scheduled appointment to checked-in and stamps the
// attendance time.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if apt.Status != model.AppointmentStatusScheduled {
		return nil, errors.NewInvalidTransition(string(apt.Status), "check in")
	}

	now := s.clock.Now()
	apt.Status = model.AppointmentStatusCheckedIn
	apt.AttendedAt = &now
	apt.UpdatedAt = now

	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to check in appointment: %w", err)
	}

	s.emit(ctx, model.EventAppointmentCheckedIn, apt)
	return apt, nil
}

// Complete closes a checked-in appointment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if apt.Status != model.AppointmentStatusCheckedIn {
		return nil, errors.NewInvalidTransition(string(apt.Status), "complete")
	}

	apt.Status = model.AppointmentStatusCompleted
	apt.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to complete appointment: %w", err)
	}

	s.emit(ctx, model.EventAppointmentCompleted, apt)
	return apt, nil
}

// Cancel terminates an appointment that has not yet finished.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if apt.Status != model.AppointmentStatusScheduled && apt.Status != model.AppointmentStatusCheckedIn {
		return nil, errors.NewInvalidTransition(string(apt.Status), "cancel")
	}

	apt.Status = model.AppointmentStatusCancelled
	apt.CancelReason = &reason
	apt.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to cancel appointment: %w", err)
	}

	s.emit(ctx, model.EventAppointmentCancelled, apt)
	return apt, nil
}

// Reschedule creates a replacement appointment at newTime and stamps the
// lineage fields on the old row. The old row keeps status=scheduled but its
// rescheduled_at stamp excludes it from no-show scans; the replacement
// starts a fresh chain via RescheduledFromID.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time, actorID uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if apt.Status != model.AppointmentStatusScheduled {
		return nil, errors.NewInvalidTransition(string(apt.Status), "reschedule")
	}
	if apt.RescheduledAt != nil {
		return nil, errors.NewInvalidTransition(string(apt.Status), "reschedule an already rescheduled appointment")
	}

	now := s.clock.Now()
	original := apt.ScheduledAt

	apt.RescheduledByID = &actorID
	apt.RescheduledAt = &now
	apt.RescheduledReason = &reason
	apt.OriginalScheduledAt = &original

	replacement := &model.Appointment{
		ID:                uuid.New(),
		ServiceID:         apt.ServiceID,
		BranchID:          apt.BranchID,
		ServicePointID:    apt.ServicePointID,
		UserID:            apt.UserID,
		GuestName:         apt.GuestName,
		GuestEmail:        apt.GuestEmail,
		GuestPhone:        apt.GuestPhone,
		Status:            model.AppointmentStatusScheduled,
		Type:              apt.Type,
		ScheduledAt:       newTime,
		RescheduledFromID: &apt.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Reschedule(ctx, apt, replacement); err != nil {
		return nil, fmt.Errorf("failed to reschedule appointment: %w", err)
	}

	s.emit(ctx, model.EventAppointmentRescheduled, replacement)

	if apt.GuestEmail != nil {
		if err := s.notifier.SendRescheduleNotice(ctx, *apt.GuestEmail, original, newTime); err != nil {
			s.logger.Error(err, "failed to send reschedule notice",
				"appointment_id", apt.ID.String())
		}
	}

	return replacement, nil
}

// MarkNoShow marks a scheduled appointment as no-show. It is a no-op when
// the appointment has already left the scheduled status or was marked by a
// concurrent scan, which keeps the scheduler's at-least-once semantics safe.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, auto bool) error {
	now := s.clock.Now()

	claimed, err := s.repo.MarkNoShow(ctx, id, now, auto)
	if err != nil {
		return fmt.Errorf("failed to mark appointment as no-show: %w", err)
	}
	if !claimed {
		s.logger.Debug("no-show mark skipped, appointment no longer scheduled",
			"appointment_id", id.String())
		return nil
	}

	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		// The mark itself committed; reporting the row back is best effort.
		s.logger.Error(err, "failed to reload appointment after no-show mark",
			"appointment_id", id.String())
		return nil
	}

	s.emit(ctx, model.EventAppointmentNoShow, apt)

	if apt.GuestEmail != nil {
		if err := s.notifier.SendNoShowNotice(ctx, *apt.GuestEmail, apt.ScheduledAt); err != nil {
			s.logger.Error(err, "failed to send no-show notice",
				"appointment_id", apt.ID.String())
		}
	}

	return nil
}

func (s *Service) validateAppointment(apt *model.Appointment) error {
	if apt.ServiceID == uuid.Nil {
		return fmt.Errorf("service ID is required")
	}
	if apt.BranchID == uuid.Nil {
		return fmt.Errorf("branch ID is required")
	}

	switch apt.Type {
	case model.AppointmentTypeAppointment, model.AppointmentTypeTurn:
		if apt.UserID == nil {
			return fmt.Errorf("user ID is required for type %s", apt.Type)
		}
	case model.AppointmentTypePublic:
		if apt.UserID != nil {
			return fmt.Errorf("public appointments cannot carry a user ID")
		}
		if apt.GuestName == nil && apt.GuestEmail == nil && apt.GuestPhone == nil {
			return fmt.Errorf("public appointments require guest contact details")
		}
	default:
		return fmt.Errorf("unknown appointment type %q", apt.Type)
	}

	if apt.Type != model.AppointmentTypeTurn && apt.ScheduledAt.IsZero() {
		return fmt.Errorf("scheduled time is required")
	}

	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, apt *model.Appointment) {
	payload, err := json.Marshal(apt)
	if err != nil {
		s.logger.Error(err, "failed to marshal lifecycle event", "event_type", eventType)
		return
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		s.logger.Error(err, "failed to enqueue lifecycle event", "event_type", eventType)
	}
}
