package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/attendly/queue-api/internal/email"
	"github.com/attendly/queue-api/internal/repository/postgres"
	appointmentService "github.com/attendly/queue-api/internal/service/appointment"
	schedulerWorker "github.com/attendly/queue-api/internal/worker"
	"github.com/attendly/queue-api/pkg/clock"
	"github.com/attendly/queue-api/pkg/logger"
	"github.com/attendly/queue-api/pkg/messaging/redis"
	"github.com/attendly/queue-api/pkg/metrics"
	"github.com/attendly/queue-api/pkg/worker"
)

// workerConfig is read from the environment. The worker runs without a
// config file so it can be deployed as a sidecar-less container.
type workerConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`

	HealthPort int `envconfig:"HEALTH_PORT" default:"8081"`

	SchedulerEnabled bool `envconfig:"SCHEDULER_ENABLED" default:"true"`
	IntervalMinutes  int  `envconfig:"SCHEDULER_INTERVAL_MINUTES" default:"5"`
	GraceTimeMinutes int  `envconfig:"SCHEDULER_GRACE_TIME_MINUTES" default:"15"`

	OutboxBatchSize    int `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxPollSeconds  int `envconfig:"OUTBOX_POLL_SECONDS" default:"5"`
	OutboxRetries      int `envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3"`
	OutboxRetrySeconds int `envconfig:"OUTBOX_RETRY_SECONDS" default:"1"`

	SMTPEnabled  bool   `envconfig:"SMTP_ENABLED" default:"false"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`
}

func main() {
	var cfg workerConfig
	if err := envconfig.Process("worker", &cfg); err != nil {
		zlog.Fatal().Err(err).Msg("failed to read environment")
	}

	log := logger.NewLogger(nil)

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	brokerLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	broker, err := redis.NewRedisBroker(redis.Config{URL: cfg.RedisURL}, &brokerLog)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	var notifier email.Notifier
	if cfg.SMTPEnabled {
		notifier = email.NewSMTPNotifier(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		notifier = email.NewNoopNotifier()
	}

	clk := clock.New()
	m := metrics.NewMetrics("attendly", "queue_worker")

	lifecycle := appointmentService.NewService(appointmentRepo, outboxRepo, notifier, clk, log)

	scheduler, err := schedulerWorker.NewNoShowScheduler(
		lifecycle,
		appointmentRepo,
		schedulerWorker.NoShowConfig{
			IntervalMinutes:  cfg.IntervalMinutes,
			GraceTimeMinutes: cfg.GraceTimeMinutes,
			Enabled:          cfg.SchedulerEnabled,
		},
		clk,
		log,
		m,
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid scheduler configuration")
	}

	processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.OutboxBatchSize,
		PollInterval:  time.Duration(cfg.OutboxPollSeconds) * time.Second,
		RetryAttempts: cfg.OutboxRetries,
		RetryDelay:    time.Duration(cfg.OutboxRetrySeconds) * time.Second,
	}, log, m)

	setupHealthCheck(cfg.HealthPort, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down worker")
		cancel()
	}()

	if cfg.SchedulerEnabled {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	processor.Start(ctx)
}

func setupHealthCheck(port int, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Error(err, "health check server failed")
			os.Exit(1)
		}
	}()
}
