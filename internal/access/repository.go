package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gatekeeper/internal/platform/db"
	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

// serializationFailure is raised when a concurrent transaction changed the row
// first under RepeatableRead.
const serializationFailure = "40001"

func concurrentUpdate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const requestColumns = `id, account, region, requestor_id, requestor_name, requestor_email, hours,
request_reason, ticket_id, platform, approver_comments, actioned_by_user_id, actioned_by_user_name,
status, version, authorization_start, actioned_at, created_at, updated_at`

// Get returns a request with its resources and users.
func (r *PGRepository) Get(ctx context.Context, id int64) (AccessRequest, error) {
	return getRequest(ctx, r.pool, id)
}

// GetMany returns the requests for the given ids, skipping unknown ids.
func (r *PGRepository) GetMany(ctx context.Context, ids []int64) ([]AccessRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return listRequests(ctx, r.pool, `SELECT `+requestColumns+` FROM access_requests WHERE id = ANY($1) ORDER BY id`, ids)
}

// ListPending returns pending requests, oldest first.
func (r *PGRepository) ListPending(ctx context.Context, filter ListFilter) ([]AccessRequest, error) {
	return listRequests(ctx, r.pool, `SELECT `+requestColumns+` FROM access_requests
WHERE status = 'REQUESTED' AND ($1 = '' OR LOWER(requestor_id) = LOWER($1))
ORDER BY created_at ASC, id ASC`, filter.RequestorID)
}

// ListCompleted returns actioned requests, most recently updated first.
func (r *PGRepository) ListCompleted(ctx context.Context, filter ListFilter) ([]AccessRequest, error) {
	return listRequests(ctx, r.pool, `SELECT `+requestColumns+` FROM access_requests
WHERE status <> 'REQUESTED' AND ($1 = '' OR LOWER(requestor_id) = LOWER($1))
ORDER BY updated_at DESC, id DESC`, filter.RequestorID)
}

// Create inserts the request and its associations.
func (t *txRepo) Create(ctx context.Context, req AccessRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO access_requests (account, region, requestor_id, requestor_name,
requestor_email, hours, request_reason, ticket_id, platform, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $11) RETURNING id`,
		req.Account, req.Region, req.RequestorID, req.RequestorName, req.RequestorEmail, req.Hours,
		req.RequestReason, req.TicketID, string(req.Platform), string(StatusPending), req.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert access request: %w", err)
	}
	for _, res := range req.Resources {
		if _, err := t.tx.Exec(ctx, `INSERT INTO access_request_resources (request_id, resource_id, name, ip, application, platform, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, res.ResourceID, res.Name, res.IP, res.Application, string(res.Platform), res.Status); err != nil {
			return 0, fmt.Errorf("insert access request resource: %w", err)
		}
	}
	for _, u := range req.Users {
		if _, err := t.tx.Exec(ctx, `INSERT INTO access_request_users (request_id, user_id, name, email)
VALUES ($1, $2, $3, $4)`, id, u.UserID, u.Name, u.Email); err != nil {
			return 0, fmt.Errorf("insert access request user: %w", err)
		}
	}
	return id, nil
}

func (t *txRepo) Get(ctx context.Context, id int64) (AccessRequest, error) {
	return getRequest(ctx, t.tx, id)
}

// Transition applies a guarded status change. Zero affected rows, or losing the
// row to a concurrent transaction, means the request is no longer pending at the
// expected version.
func (t *txRepo) Transition(ctx context.Context, tr Transition) error {
	tag, err := t.tx.Exec(ctx, `UPDATE access_requests SET
status = $3, approver_comments = $4, hours = $5, actioned_by_user_id = $6, actioned_by_user_name = $7,
actioned_at = $8, authorization_start = $9, version = version + 1, updated_at = $8
WHERE id = $1 AND status = 'REQUESTED' AND version = $2`,
		tr.ID, tr.ExpectedVersion, string(tr.Status), tr.Comments, tr.Hours, tr.ActionedByUserID,
		tr.ActionedByUserName, tr.ActionedAt, nullableTime(tr.AuthorizationStart))
	if concurrentUpdate(err) {
		return ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("transition access request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (t *txRepo) RecordTrail(ctx context.Context, entry shared.ApprovalLog) error {
	return shared.InsertApproval(ctx, t.tx, entry)
}

func getRequest(ctx context.Context, conn db.DBTX, id int64) (AccessRequest, error) {
	req, err := scanRequest(conn.QueryRow(ctx, `SELECT `+requestColumns+` FROM access_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccessRequest{}, ErrRequestNotFound
		}
		return AccessRequest{}, err
	}
	if err := loadAssociations(ctx, conn, &req); err != nil {
		return AccessRequest{}, err
	}
	return req, nil
}

func listRequests(ctx context.Context, conn db.DBTX, query string, args ...any) ([]AccessRequest, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []AccessRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadAssociations(ctx, conn, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRequest(row pgx.Row) (AccessRequest, error) {
	var (
		req                   AccessRequest
		platform, status      string
		authStart, actionedAt pgtype.Timestamptz
	)
	err := row.Scan(&req.ID, &req.Account, &req.Region, &req.RequestorID, &req.RequestorName, &req.RequestorEmail,
		&req.Hours, &req.RequestReason, &req.TicketID, &platform, &req.ApproverComments, &req.ActionedByUserID,
		&req.ActionedByUserName, &status, &req.Version, &authStart, &actionedAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return AccessRequest{}, err
	}
	req.Platform = Platform(platform)
	req.Status = Status(status)
	if authStart.Valid {
		req.AuthorizationStart = authStart.Time
	}
	if actionedAt.Valid {
		req.ActionedAt = actionedAt.Time
	}
	return req, nil
}

func loadAssociations(ctx context.Context, conn db.DBTX, req *AccessRequest) error {
	rows, err := conn.Query(ctx, `SELECT id, resource_id, name, ip, application, platform, status
FROM access_request_resources WHERE request_id = $1 ORDER BY id`, req.ID)
	if err != nil {
		return err
	}
	req.Resources = req.Resources[:0]
	for rows.Next() {
		var (
			res      Resource
			platform string
		)
		if err := rows.Scan(&res.ID, &res.ResourceID, &res.Name, &res.IP, &res.Application, &platform, &res.Status); err != nil {
			rows.Close()
			return err
		}
		res.Platform = Platform(platform)
		req.Resources = append(req.Resources, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `SELECT id, user_id, name, email FROM access_request_users WHERE request_id = $1 ORDER BY id`, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	req.Users = req.Users[:0]
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UserID, &u.Name, &u.Email); err != nil {
			return err
		}
		req.Users = append(req.Users, u)
	}
	return rows.Err()
}

func nullableTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
