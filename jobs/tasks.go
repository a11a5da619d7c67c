package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries expiration work ahead of mail and maintenance.
	QueueCritical = "critical"

	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskAccessExpire processes the end of one grant window.
	TaskAccessExpire = "access:expire"
	// TaskAccessExpirySweep re-derives expirations from absolute timestamps.
	TaskAccessExpirySweep = "access:expiry-sweep"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if len(payload.To) == 0 {
		return nil, fmt.Errorf("jobs: send email requires a recipient")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// ExpirePayload identifies the request whose window ended.
type ExpirePayload struct {
	RequestID int64 `json:"request_id"`
}

// NewExpireTask constructs an access expiration task.
func NewExpireTask(requestID int64) (*asynq.Task, error) {
	if requestID <= 0 {
		return nil, fmt.Errorf("jobs: invalid request id %d", requestID)
	}
	data, err := json.Marshal(ExpirePayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessExpire, data), nil
}

// NewExpirySweepTask constructs the periodic expiration sweep.
func NewExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskAccessExpirySweep, nil)
}

// CleanupPayload configures the idempotency cleanup.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
