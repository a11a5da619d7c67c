package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/gatekeeper/internal/jobs"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// MailJob delivers queued emails.
type MailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob constructs the mail delivery handler.
func NewMailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || len(payload.To) == 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()
	if err := j.Mailer.Send(ctx, payload); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("send email", slog.Any("to", payload.To), slog.String("subject", payload.Subject), slog.Any("error", err))
		}
		return err
	}
	return nil
}
