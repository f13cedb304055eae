package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/repository"
	"github.com/attendly/queue-api/pkg/clock"
	"github.com/attendly/queue-api/pkg/errors"
	"github.com/attendly/queue-api/pkg/logger"
	"github.com/attendly/queue-api/pkg/metrics"
)

const (
	avgServiceCacheTTL = 5 * time.Minute
)

// Service manages the waiting-line side of appointments: turn numbers,
// positions, estimated waits and the waiting -> serving -> complete
// progression.
type Service struct {
	repo               repository.QueueRepository
	appointments       repository.AppointmentRepository
	outbox             repository.OutboxRepository
	clock              clock.Clock
	logger             *logger.Logger
	metrics            *metrics.Metrics
	avgServiceCache    *gocache.Cache
	defaultServiceTime time.Duration
}

func NewService(
	repo repository.QueueRepository,
	appointments repository.AppointmentRepository,
	outbox repository.OutboxRepository,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	defaultServiceTime time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		appointments:       appointments,
		outbox:             outbox,
		clock:              clk,
		logger:             logger,
		metrics:            metrics,
		avgServiceCache:    gocache.New(avgServiceCacheTTL, 10*time.Minute),
		defaultServiceTime: defaultServiceTime,
	}
}

// Enqueue converts an appointment into a queue position. The returned
// position counts waiting entries created earlier in the same
// branch+service scope; the estimated wait multiplies it by the historical
// average service time, falling back to the configured default when no
// history exists.
func (s *Service) Enqueue(ctx context.Context, appointmentID uuid.UUID) (*model.QueuePosition, error) {
	apt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	if apt.Status.IsTerminal() {
		return nil, errors.NewInvalidTransition(string(apt.Status), "enqueue")
	}

	// One queue entry per appointment.
	if existing, err := s.repo.GetByAppointment(ctx, apt.ID); err == nil {
		return nil, errors.NewConflict(
			fmt.Sprintf("appointment already holds queue entry %s", existing.ID))
	} else if !errors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check for existing queue entry: %w", err)
	}

	scope := model.QueueScope{BranchID: apt.BranchID, ServiceID: apt.ServiceID}
	now := s.clock.Now()

	entry := &model.QueueEntry{
		ID:            uuid.New(),
		AppointmentID: apt.ID,
		Status:        model.QueueStatusWaiting,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, entry, scope); err != nil {
		return nil, fmt.Errorf("failed to create queue entry: %w", err)
	}

	position, err := s.repo.CountWaitingBefore(ctx, scope, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue position: %w", err)
	}

	perVisit := s.averageServiceTime(ctx, apt.ServiceID)
	s.metrics.QueueEnqueued.Inc()

	return &model.QueuePosition{
		Entry:         entry,
		Position:      position,
		EstimatedWait: time.Duration(position) * perVisit,
	}, nil
}

// Call advances a waiting entry to serving and stamps the call time.
func (s *Service) Call(ctx context.Context, entryID uuid.UUID) (*model.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	if entry.Status != model.QueueStatusWaiting {
		return nil, errors.NewInvalidTransition(string(entry.Status), "call")
	}

	now := s.clock.Now()
	entry.Status = model.QueueStatusServing
	entry.CalledAt = &now

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to call queue entry: %w", err)
	}

	s.metrics.QueueCalled.Inc()
	s.emit(ctx, model.EventQueueCalled, entry)
	return entry, nil
}

// Finish advances a serving entry to complete and stamps the completion
// time.
func (s *Service) Finish(ctx context.Context, entryID uuid.UUID) (*model.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	if entry.Status != model.QueueStatusServing {
		return nil, errors.NewInvalidTransition(string(entry.Status), "finish")
	}

	now := s.clock.Now()
	entry.Status = model.QueueStatusComplete
	entry.CompletedAt = &now

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to finish queue entry: %w", err)
	}

	s.metrics.QueueCompleted.Inc()
	s.emit(ctx, model.EventQueueCompleted, entry)
	return entry, nil
}

func (s *Service) averageServiceTime(ctx context.Context, serviceID uuid.UUID) time.Duration {
	key := serviceID.String()
	if cached, ok := s.avgServiceCache.Get(key); ok {
		return cached.(time.Duration)
	}

	seconds, found, err := s.repo.AvgServiceSeconds(ctx, serviceID)
	if err != nil {
		s.logger.Error(err, "failed to load average service time, using default",
			"service_id", key)
		return s.defaultServiceTime
	}
	if !found || seconds <= 0 {
		return s.defaultServiceTime
	}

	avg := time.Duration(seconds * float64(time.Second))
	s.avgServiceCache.Set(key, avg, gocache.DefaultExpiration)
	return avg
}

func (s *Service) emit(ctx context.Context, eventType string, entry *model.QueueEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error(err, "failed to marshal queue event", "event_type", eventType)
		return
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		s.logger.Error(err, "failed to enqueue queue event", "event_type", eventType)
	}
}
