package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/repository"
	"github.com/attendly/queue-api/pkg/logger"
	"github.com/attendly/queue-api/pkg/messaging"
	"github.com/attendly/queue-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	// Processed rows older than RetentionAge are purged once per
	// CleanupInterval.
	RetentionAge    time.Duration
	CleanupInterval time.Duration
}

// OutboxProcessor drains pending lifecycle events from the outbox table and
// publishes them to the message broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.RetentionAge <= 0 {
		config.RetentionAge = 24 * time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "failed to process outbox events")
			}
		case <-cleanup.C:
			if err := p.cleanupProcessed(ctx); err != nil {
				p.logger.Error(err, "failed to purge processed outbox events")
			}
		}
	}
}

func (p *OutboxProcessor) cleanupProcessed(ctx context.Context) error {
	before := time.Now().Add(-p.config.RetentionAge)
	deleted, err := p.repo.DeleteProcessedBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to delete processed events: %w", err)
	}
	if deleted > 0 {
		p.logger.Info("purged processed outbox events", "deleted", deleted)
	}
	return nil
}

func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	fetchStart := time.Now()
	events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
	p.metrics.DatabaseLatency.WithLabelValues("get_pending_events").Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
	}

	return nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := retry(p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, event.EventType, event.Payload)
	})

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		errStr := err.Error()
		if updateErr := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusFailed, &errStr); updateErr != nil {
			p.logger.Error(updateErr, "failed to update event status")
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil); err != nil {
		p.logger.Error(err, "failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}

func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
