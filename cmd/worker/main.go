package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gatekeeper/internal/access"
	"github.com/odyssey-erp/gatekeeper/internal/access/policy"
	"github.com/odyssey-erp/gatekeeper/internal/accounts"
	"github.com/odyssey-erp/gatekeeper/internal/app"
	"github.com/odyssey-erp/gatekeeper/internal/events"
	jobmetrics "github.com/odyssey-erp/gatekeeper/internal/jobs"
	"github.com/odyssey-erp/gatekeeper/internal/notify"
	"github.com/odyssey-erp/gatekeeper/internal/observability"
	"github.com/odyssey-erp/gatekeeper/internal/platform/cache"
	"github.com/odyssey-erp/gatekeeper/internal/platform/db"
	"github.com/odyssey-erp/gatekeeper/internal/resources"
	"github.com/odyssey-erp/gatekeeper/internal/shared"
	"github.com/odyssey-erp/gatekeeper/internal/view"
	"github.com/odyssey-erp/gatekeeper/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(cfg.RedisOptions().Asynq())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse mail templates", slog.Any("error", err))
		os.Exit(1)
	}
	notifier := notify.NewDispatcher(notify.Config{
		ApproverEmail: cfg.ApproverEmail,
		TeamEmail:     cfg.TeamEmail,
		OpsEmail:      cfg.OpsEmail,
	}, jobClient, templates, logger)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	idempotency := shared.NewIdempotencyStore(pool)
	repo := access.NewRepository(pool)
	trail := shared.NewApprovalRecorder(pool, logger)
	service := access.NewService(access.ServiceConfig{
		Repository:      repo,
		Evaluator:       policy.NewEvaluator(cfg.ApprovalPolicy()),
		Resources:       resources.NewCatalog(resources.NewPGStore(pool)),
		Accounts:        accounts.NewClassifier(accounts.NewPGStore(pool), redisClient, cfg.AccountCacheTTL, logger),
		Events:          events.NewPublisher(redisClient, cfg.EventsChannel),
		Notifier:        notifier,
		Scheduler:       jobClient,
		Tracker:         access.NewTracker(repo, trail, cfg.GrantLookback, logger),
		Trail:           trail,
		Audit:           shared.NewAuditLogger(pool),
		Idempotency:     idempotency,
		Metrics:         metrics,
		Logger:          logger,
		MaxHours:        cfg.AccessMaxHours,
		NotifyOnRequest: cfg.NotifyAccessRequested,
	})

	expirationJob := jobs.NewExpirationJob(service, jobClient, notifier, logger, jobMetrics)
	mailJob := jobs.NewMailJob(notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}), logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: idempotency, Logger: logger, Metrics: jobMetrics}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(int(cfg.IdempotencyRetention / time.Hour))
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.RedisOptions().Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessExpire, Handler: expirationJob.HandleExpire},
			{Type: jobs.TaskAccessExpirySweep, Handler: expirationJob.HandleSweep},
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepSpec, Task: jobs.NewExpirySweepTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueCritical), asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
