package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendly/queue-api/internal/repository"
	"github.com/attendly/queue-api/internal/service/appointment"
	"github.com/attendly/queue-api/pkg/clock"
	"github.com/attendly/queue-api/pkg/errors"
	"github.com/attendly/queue-api/pkg/logger"
	"github.com/attendly/queue-api/pkg/metrics"
)

const executionTimeWindow = 10

// NoShowConfig drives the recurring no-show scan.
type NoShowConfig struct {
	IntervalMinutes  int  `mapstructure:"interval_minutes" json:"interval_minutes"`
	GraceTimeMinutes int  `mapstructure:"grace_time_minutes" json:"grace_time_minutes"`
	Enabled          bool `mapstructure:"enabled" json:"enabled"`
}

func (c NoShowConfig) validate() error {
	if c.IntervalMinutes < 1 {
		return errors.NewConfiguration("interval must be at least one minute")
	}
	if c.GraceTimeMinutes < 0 {
		return errors.NewConfiguration("grace time cannot be negative")
	}
	return nil
}

func (c NoShowConfig) interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c NoShowConfig) grace() time.Duration {
	return time.Duration(c.GraceTimeMinutes) * time.Minute
}

// NoShowConfigUpdate carries a partial configuration change. Nil fields
// keep their current value.
type NoShowConfigUpdate struct {
	IntervalMinutes  *int  `json:"interval_minutes"`
	GraceTimeMinutes *int  `json:"grace_time_minutes"`
	Enabled          *bool `json:"enabled"`
}

// NoShowStats is a snapshot of scheduler activity.
type NoShowStats struct {
	TotalRuns          int64      `json:"total_runs"`
	TotalMarked        int64      `json:"total_marked"`
	TotalErrors        int64      `json:"total_errors"`
	TicksSkipped       int64      `json:"ticks_skipped"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	NextRunAt          *time.Time `json:"next_run_at,omitempty"`
	AvgExecutionMillis int64      `json:"avg_execution_millis"`
}

// NoShowScheduler periodically scans scheduled appointments past their
// grace window and marks them as no-show, exactly once each. The mark is
// idempotent at the repository level, so re-scans are safe; the in-process
// guard only keeps ticks from overlapping within this instance.
type NoShowScheduler struct {
	lifecycle *appointment.Service
	repo      repository.AppointmentRepository
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics

	running atomic.Bool

	mu        sync.Mutex
	config    NoShowConfig
	stats     NoShowStats
	durations []time.Duration
	started   bool
	ticker    *time.Ticker
	cancel    context.CancelFunc
}

func NewNoShowScheduler(
	lifecycle *appointment.Service,
	repo repository.AppointmentRepository,
	config NoShowConfig,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*NoShowScheduler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &NoShowScheduler{
		lifecycle: lifecycle,
		repo:      repo,
		config:    config,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Start launches the recurring scan. It is invoked deliberately by the
// composition root, never as an import side effect.
func (s *NoShowScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ticker = time.NewTicker(s.config.interval())
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("starting no-show scheduler",
		"interval_minutes", s.config.IntervalMinutes,
		"grace_time_minutes", s.config.GraceTimeMinutes)

	go s.loop(ctx)
}

func (s *NoShowScheduler) loop(ctx context.Context) {
	defer s.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down no-show scheduler")
			return
		case <-s.ticker.C:
			if _, err := s.runOnce(ctx); err != nil {
				// A failed scan never escapes the tick.
				s.logger.Error(err, "no-show scan failed")
			}
		}
	}
}

func (s *NoShowScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cancel()
}

// UpdateConfig applies a partial configuration change. Invalid values are
// rejected and the prior configuration stays active.
func (s *NoShowScheduler) UpdateConfig(update NoShowConfigUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.config
	if update.IntervalMinutes != nil {
		next.IntervalMinutes = *update.IntervalMinutes
	}
	if update.GraceTimeMinutes != nil {
		next.GraceTimeMinutes = *update.GraceTimeMinutes
	}
	if update.Enabled != nil {
		next.Enabled = *update.Enabled
	}

	if err := next.validate(); err != nil {
		return err
	}

	if s.started && next.IntervalMinutes != s.config.IntervalMinutes {
		s.ticker.Reset(next.interval())
	}
	s.config = next

	s.logger.Info("no-show scheduler config updated",
		"interval_minutes", next.IntervalMinutes,
		"grace_time_minutes", next.GraceTimeMinutes,
		"enabled", next.Enabled)
	return nil
}

func (s *NoShowScheduler) GetConfig() NoShowConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *NoShowScheduler) GetStats() NoShowStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ExecuteManually runs one scan outside the timer. It shares the tick
// function and overlap guard with the timer-driven path.
func (s *NoShowScheduler) ExecuteManually(ctx context.Context) (int, error) {
	return s.runOnce(ctx)
}

func (s *NoShowScheduler) runOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("no-show scan already running, skipping tick")
		s.metrics.NoShowTicksSkipped.Inc()
		s.mu.Lock()
		s.stats.TicksSkipped++
		s.mu.Unlock()
		return 0, nil
	}
	defer s.running.Store(false)

	timer := prometheus.NewTimer(s.metrics.NoShowTickLatency)
	defer timer.ObserveDuration()

	start := s.clock.Now()
	cutoff := start.Add(-s.GetConfig().grace())

	overdue, err := s.repo.FindScheduledBefore(ctx, cutoff)
	if err != nil {
		s.metrics.NoShowErrors.Inc()
		s.recordRun(start, 0, 1)
		return 0, fmt.Errorf("failed to select overdue appointments: %w", err)
	}

	marked := 0
	rowErrors := int64(0)
	for _, apt := range overdue {
		if err := s.lifecycle.MarkNoShow(ctx, apt.ID, true); err != nil {
			rowErrors++
			s.metrics.NoShowErrors.Inc()
			s.logger.Error(err, "failed to mark appointment as no-show",
				"appointment_id", apt.ID.String())
			continue
		}
		marked++
		s.metrics.NoShowMarked.Inc()
	}

	s.recordRun(start, marked, rowErrors)

	if marked > 0 || rowErrors > 0 {
		s.logger.Info("no-show scan finished",
			"scanned", len(overdue),
			"marked", marked,
			"errors", rowErrors)
	}
	return marked, nil
}

func (s *NoShowScheduler) recordRun(start time.Time, marked int, errCount int64) {
	elapsed := s.clock.Now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := start.Add(s.config.interval())

	s.stats.TotalRuns++
	s.stats.TotalMarked += int64(marked)
	s.stats.TotalErrors += errCount
	s.stats.LastRunAt = &start
	s.stats.NextRunAt = &next

	s.durations = append(s.durations, elapsed)
	if len(s.durations) > executionTimeWindow {
		s.durations = s.durations[len(s.durations)-executionTimeWindow:]
	}
	var sum time.Duration
	for _, d := range s.durations {
		sum += d
	}
	s.stats.AvgExecutionMillis = (sum / time.Duration(len(s.durations))).Milliseconds()
}
