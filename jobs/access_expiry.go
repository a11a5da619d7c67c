package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gatekeeper/internal/access"
	jobmetrics "github.com/odyssey-erp/gatekeeper/internal/jobs"
	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

// ExpirationService is the part of the lifecycle service used by expiration jobs.
type ExpirationService interface {
	Expire(ctx context.Context, requestID int64) (access.RequestEvent, error)
	SweepExpired(ctx context.Context) ([]int64, error)
}

// OpsNotifier escalates expiration failures.
type OpsNotifier interface {
	NotifyOps(ctx context.Context, requestID int64, cause error) error
}

// ExpirationJob handles access:expire and access:expiry-sweep tasks.
type ExpirationJob struct {
	Service   ExpirationService
	Scheduler access.ExpiryScheduler
	Notifier  OpsNotifier
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	// RetryDelay postpones a trigger that fired before its window ended.
	RetryDelay time.Duration
	clock      func() time.Time
}

// NewExpirationJob initialises the expiration handlers.
func NewExpirationJob(service ExpirationService, scheduler access.ExpiryScheduler, notifier OpsNotifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpirationJob {
	return &ExpirationJob{
		Service:    service,
		Scheduler:  scheduler,
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    metrics,
		RetryDelay: time.Minute,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleExpire processes a single expiration trigger.
func (j *ExpirationJob) HandleExpire(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("access expire: handler not configured")
	}
	var payload ExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RequestID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskAccessExpire)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int64("request_id", payload.RequestID))
	event, err := j.Service.Expire(ctx, payload.RequestID)
	switch {
	case err == nil:
		j.metrics().AddExpirations(1)
		logger.Info("access expired", slog.Int("users", len(event.Users)))
		return nil
	case errors.Is(err, access.ErrStillLive):
		logger.Info("expiration fired early, rescheduling", slog.Any("reason", err))
		if j.Scheduler == nil {
			return err
		}
		return j.Scheduler.ScheduleExpiration(ctx, payload.RequestID, j.now().Add(j.RetryDelay))
	case errors.Is(err, shared.ErrIdempotencyConflict),
		errors.Is(err, access.ErrInvalidTransition),
		errors.Is(err, access.ErrRequestNotFound):
		logger.Info("expiration skipped", slog.Any("reason", err))
		return nil
	}

	logger.Error("expiration failed", slog.Any("error", err))
	if j.finalAttempt(ctx) && j.Notifier != nil {
		if notifyErr := j.Notifier.NotifyOps(ctx, payload.RequestID, err); notifyErr != nil {
			logger.Error("notify ops", slog.Any("error", notifyErr))
		}
	}
	return fmt.Errorf("expire request %d: %w", payload.RequestID, err)
}

// HandleSweep expires every elapsed grant that was not processed yet.
func (j *ExpirationJob) HandleSweep(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("access sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskAccessExpirySweep)
	defer func() {
		err = tracker.End(err)
	}()
	expired, err := j.Service.SweepExpired(ctx)
	j.metrics().AddExpirations(len(expired))
	if len(expired) > 0 {
		j.logger().Info("expiry sweep processed grants", slog.Any("request_ids", expired))
	}
	if err != nil {
		j.logger().Error("expiry sweep", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *ExpirationJob) finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (j *ExpirationJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *ExpirationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ExpirationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
