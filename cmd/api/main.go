package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/attendly/queue-api/internal/config"
	"github.com/attendly/queue-api/internal/email"
	appointmentHandler "github.com/attendly/queue-api/internal/handler/appointment"
	healthHandler "github.com/attendly/queue-api/internal/handler/health"
	queueHandler "github.com/attendly/queue-api/internal/handler/queue"
	reportHandler "github.com/attendly/queue-api/internal/handler/report"
	schedulerHandler "github.com/attendly/queue-api/internal/handler/scheduler"
	"github.com/attendly/queue-api/internal/middleware"
	"github.com/attendly/queue-api/internal/repository/postgres"
	"github.com/attendly/queue-api/internal/router"
	appointmentService "github.com/attendly/queue-api/internal/service/appointment"
	queueService "github.com/attendly/queue-api/internal/service/queue"
	reportService "github.com/attendly/queue-api/internal/service/report"
	schedulerWorker "github.com/attendly/queue-api/internal/worker"
	"github.com/attendly/queue-api/pkg/auth"
	"github.com/attendly/queue-api/pkg/clock"
	"github.com/attendly/queue-api/pkg/logger"
	"github.com/attendly/queue-api/pkg/messaging/redis"
	"github.com/attendly/queue-api/pkg/metrics"
	"github.com/attendly/queue-api/pkg/validator"
	"github.com/attendly/queue-api/pkg/worker"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	queueRepo := postgres.NewQueueRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	var notifier email.Notifier
	if cfg.SMTP.Enabled {
		notifier = email.NewSMTPNotifier(cfg.SMTP.ToEmailConfig())
	} else {
		notifier = email.NewNoopNotifier()
	}

	clk := clock.New()
	m := metrics.NewMetrics("attendly", "queue_api")

	appointmentSvc := appointmentService.NewService(appointmentRepo, outboxRepo, notifier, clk, log)
	queueSvc := queueService.NewService(queueRepo, appointmentRepo, outboxRepo, clk, log, m, cfg.Queue.DefaultServiceTime())
	waitTimeEngine := reportService.NewWaitTimeEngine(queueRepo, log)
	appointmentEngine := reportService.NewAppointmentEngine(appointmentRepo, log)

	scheduler, err := schedulerWorker.NewNoShowScheduler(
		appointmentSvc,
		appointmentRepo,
		schedulerWorker.NoShowConfig{
			IntervalMinutes:  cfg.Scheduler.IntervalMinutes,
			GraceTimeMinutes: cfg.Scheduler.GraceTimeMinutes,
			Enabled:          cfg.Scheduler.Enabled,
		},
		clk,
		log,
		m,
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid scheduler configuration")
	}

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	v := validator.New()
	apptH := appointmentHandler.NewHandler(appointmentSvc, v)
	queueH := queueHandler.NewHandler(queueSvc)
	reportH := reportHandler.NewHandler(waitTimeEngine, appointmentEngine)
	schedH := schedulerHandler.NewHandler(scheduler)
	healthH := healthHandler.NewHandler(db, version)

	r := router.New(authMiddleware, apptH, queueH, reportH, schedH, healthH, router.Config{
		RateLimit:     rate.Limit(100),
		RateBurst:     200,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "queue_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	brokerLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &brokerLog)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	outboxProcessor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  time.Duration(cfg.Outbox.PollIntervalSeconds) * time.Second,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Outbox.RetryDelaySeconds) * time.Second,
	}, log, m)
	go outboxProcessor.Start(ctx)

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info("server exited properly")
}
