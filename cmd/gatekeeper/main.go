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
	"github.com/odyssey-erp/gatekeeper/internal/identity"
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
		slog.Default().Info("test mode detected, skipping server startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	repo := access.NewRepository(dbpool)
	trail := shared.NewApprovalRecorder(dbpool, logger)
	service := access.NewService(access.ServiceConfig{
		Repository:      repo,
		Evaluator:       policy.NewEvaluator(cfg.ApprovalPolicy()),
		Resources:       resources.NewCatalog(resources.NewPGStore(dbpool)),
		Accounts:        accounts.NewClassifier(accounts.NewPGStore(dbpool), redisClient, cfg.AccountCacheTTL, logger),
		Events:          events.NewPublisher(redisClient, cfg.EventsChannel),
		Notifier:        notifier,
		Scheduler:       jobClient,
		Tracker:         access.NewTracker(repo, trail, cfg.GrantLookback, logger),
		Trail:           trail,
		Audit:           shared.NewAuditLogger(dbpool),
		Idempotency:     shared.NewIdempotencyStore(dbpool),
		Metrics:         metrics,
		Logger:          logger,
		MaxHours:        cfg.AccessMaxHours,
		NotifyOnRequest: cfg.NotifyAccessRequested,
	})

	identityMiddleware := identity.Middleware{
		Resolver: identity.NewResolver(cfg.ResolverConfig()),
		Logger:   logger,
	}
	accessHandler := access.NewHandler(logger, service, identityMiddleware)

	inspector := asynq.NewInspector(cfg.RedisOptions().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AccessHandler: accessHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
