package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gatekeeper/internal/platform/db"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action. Auto grants are recorded with it too.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalCancel marks a cancel action.
	ApprovalCancel ApprovalAction = "CANCEL"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   int64
	ActorID string
	Action  ApprovalAction
	Note    string
	At      time.Time
}

func (l ApprovalLog) validate() error {
	if l.Module == "" {
		return errors.New("approval module required")
	}
	if l.ActorID == "" {
		return errors.New("approval actor required")
	}
	if l.RefID == 0 {
		return errors.New("approval ref id required")
	}
	if l.Action == "" {
		return errors.New("approval action required")
	}
	return nil
}

// InsertApproval writes an approval entry using the supplied connection or transaction.
func InsertApproval(ctx context.Context, conn db.DBTX, log ApprovalLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := conn.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, at)
	return err
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// List returns approvals for module/ref.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref int64) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC`, module, ref)
	if err != nil {
		r.logger.Error("list approvals", slog.String("module", module), slog.Int64("ref", ref), slog.Any("error", err))
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// LatestByAction returns, per ref id, the most recent time the action was recorded
// within [from, to].
func (r *ApprovalRecorder) LatestByAction(ctx context.Context, module string, action ApprovalAction, from, to time.Time) (map[int64]time.Time, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT ref_id, MAX(at)
FROM approvals WHERE module=$1 AND action=$2 AND at BETWEEN $3 AND $4
GROUP BY ref_id`, module, string(action), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	latest := make(map[int64]time.Time)
	for rows.Next() {
		var (
			ref int64
			at  time.Time
		)
		if err := rows.Scan(&ref, &at); err != nil {
			return nil, err
		}
		latest[ref] = at
	}
	return latest, rows.Err()
}
