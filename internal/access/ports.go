package access

import (
	"context"
	"time"

	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

// ResourceValidator checks targets against the hosting environment.
type ResourceValidator interface {
	ValidateTargets(ctx context.Context, env Environment, resourceIDs []string) error
	// CheckStatus returns the runtime status per resource id. Ids missing from
	// the result are reported as Unknown.
	CheckStatus(ctx context.Context, env Environment, resourceIDs []string) (map[string]string, error)
}

// AccountClassifier resolves the SDLC class of an account alias.
type AccountClassifier interface {
	ClassifySdlc(ctx context.Context, accountAlias string) (string, error)
}

// EventPublisher broadcasts newly pending requests.
type EventPublisher interface {
	Publish(ctx context.Context, req AccessRequest) error
}

// Notifier dispatches lifecycle notifications.
type Notifier interface {
	NotifyRequested(ctx context.Context, req AccessRequest) error
	NotifyApproved(ctx context.Context, req AccessRequest, event RequestEvent) error
	NotifyRejected(ctx context.Context, req AccessRequest) error
	NotifyCanceled(ctx context.Context, req AccessRequest) error
	NotifyExpired(ctx context.Context, req AccessRequest, event RequestEvent) error
	NotifyAdminsOfFailure(ctx context.Context, req AccessRequest, cause error) error
	NotifyOps(ctx context.Context, requestID int64, cause error) error
}

// ExpiryScheduler arranges the expiration trigger of a granted request.
type ExpiryScheduler interface {
	ScheduleExpiration(ctx context.Context, requestID int64, at time.Time) error
}

// GrantTrail exposes the latest trail entry per request for an action.
type GrantTrail interface {
	LatestByAction(ctx context.Context, module string, action shared.ApprovalAction, from, to time.Time) (map[int64]time.Time, error)
}

// TrailReader lists the recorded trail of one request.
type TrailReader interface {
	List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error)
}

// IdempotencyStore guards one-shot processing keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TransitionRecorder observes lifecycle transitions.
type TransitionRecorder interface {
	RecordTransition(status string, auto bool)
}

// ListFilter narrows repository listings.
type ListFilter struct {
	RequestorID string
}

// Repository exposes persistence operations for access requests.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (AccessRequest, error)
	GetMany(ctx context.Context, ids []int64) ([]AccessRequest, error)
	ListPending(ctx context.Context, filter ListFilter) ([]AccessRequest, error)
	ListCompleted(ctx context.Context, filter ListFilter) ([]AccessRequest, error)
}

// TxRepository exposes transactional persistence operations.
type TxRepository interface {
	Create(ctx context.Context, req AccessRequest) (int64, error)
	Get(ctx context.Context, id int64) (AccessRequest, error)
	Transition(ctx context.Context, t Transition) error
	RecordTrail(ctx context.Context, entry shared.ApprovalLog) error
}
