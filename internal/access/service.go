package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/gatekeeper/internal/access/policy"
	"github.com/odyssey-erp/gatekeeper/internal/identity"
	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

// DefaultMaxHours bounds requested and approved hours when no limit is configured.
const DefaultMaxHours = 168

// CancelComment is stored on every canceled request.
const CancelComment = "The Request was canceled"

const statusRefreshConcurrency = 8

// ServiceConfig wires the collaborators of Service.
type ServiceConfig struct {
	Repository  Repository
	Evaluator   policy.Evaluator
	Resources   ResourceValidator
	Accounts    AccountClassifier
	Events      EventPublisher
	Notifier    Notifier
	Scheduler   ExpiryScheduler
	Tracker     *Tracker
	Trail       TrailReader
	Audit       AuditRecorder
	Idempotency IdempotencyStore
	Metrics     TransitionRecorder
	Logger      *slog.Logger
	// MaxHours caps requested and approved hours. Zero means DefaultMaxHours.
	MaxHours int
	// NotifyOnRequest mails approvers when a request needs approval.
	NotifyOnRequest bool
	Clock           func() time.Time
}

// Service orchestrates the access request lifecycle.
type Service struct {
	repo            Repository
	evaluator       policy.Evaluator
	resources       ResourceValidator
	accounts        AccountClassifier
	events          EventPublisher
	notifier        Notifier
	scheduler       ExpiryScheduler
	tracker         *Tracker
	trail           TrailReader
	audit           AuditRecorder
	idempotency     IdempotencyStore
	metrics         TransitionRecorder
	logger          *slog.Logger
	maxHours        int
	notifyOnRequest bool
	clock           func() time.Time
}

// NewService constructs the lifecycle service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:            cfg.Repository,
		evaluator:       cfg.Evaluator,
		resources:       cfg.Resources,
		accounts:        cfg.Accounts,
		events:          cfg.Events,
		notifier:        cfg.Notifier,
		scheduler:       cfg.Scheduler,
		tracker:         cfg.Tracker,
		trail:           cfg.Trail,
		audit:           cfg.Audit,
		idempotency:     cfg.Idempotency,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		maxHours:        cfg.MaxHours,
		notifyOnRequest: cfg.NotifyOnRequest,
		clock:           cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxHours <= 0 {
		s.maxHours = DefaultMaxHours
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// SubmitInput describes a new access request.
type SubmitInput struct {
	Account        string
	Region         string
	Hours          int
	Platform       string
	RequestReason  string
	TicketID       string
	Resources      []ResourceInput
	Users          []UserInput
	IdempotencyKey string
}

// ResourceInput describes one requested resource.
type ResourceInput struct {
	ResourceID  string
	Name        string
	IP          string
	Application string
	Platform    string
}

// UserInput describes one user receiving access.
type UserInput struct {
	UserID string
	Name   string
	Email  string
}

// Submit validates, evaluates and persists a new request, granting it
// immediately when the approval policy allows.
func (s *Service) Submit(ctx context.Context, actor identity.Principal, input SubmitInput) (AccessRequest, error) {
	now := s.clock()
	req, err := s.buildRequest(actor, input, now)
	if err != nil {
		return AccessRequest{}, err
	}

	idemKey := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		idemKey = "access:submit:" + input.IdempotencyKey
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "access.submit"); err != nil {
			return AccessRequest{}, err
		}
	}
	created, autoGranted, err := s.submit(ctx, actor, req, now)
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return AccessRequest{}, err
	}

	s.recordAudit(ctx, actor.ID, "access.submitted", created.ID, map[string]any{
		"account":      created.Account,
		"hours":        created.Hours,
		"auto_granted": autoGranted,
	})
	s.recordTransition(StatusPending, false)
	if autoGranted {
		s.recordTransition(StatusApproved, true)
		s.afterGrant(ctx, created)
		return created, nil
	}
	s.afterPending(ctx, created)
	return created, nil
}

func (s *Service) submit(ctx context.Context, actor identity.Principal, req AccessRequest, now time.Time) (AccessRequest, bool, error) {
	env := req.Environment()
	if s.resources != nil {
		if err := s.resources.ValidateTargets(ctx, env, req.ResourceIDs()); err != nil {
			return AccessRequest{}, false, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	sdlc, err := s.accounts.ClassifySdlc(ctx, req.Account)
	if err != nil {
		return AccessRequest{}, false, fmt.Errorf("%w: classify account %s: %v", ErrPolicyLookup, req.Account, err)
	}
	needed, err := s.evaluator.IsApprovalNeeded(policy.Input{
		Role:         actor.Role,
		SDLC:         sdlc,
		Hours:        req.Hours,
		Applications: req.Applications(),
		Memberships:  actor.Memberships,
	})
	switch {
	case errors.Is(err, policy.ErrLookup):
		return AccessRequest{}, false, fmt.Errorf("%w: %v", ErrPolicyLookup, err)
	case errors.Is(err, policy.ErrUnknownRole):
		return AccessRequest{}, false, fmt.Errorf("%w: %v", ErrUnknownRole, err)
	case err != nil:
		return AccessRequest{}, false, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Create(ctx, req)
		if err != nil {
			return err
		}
		req.ID = id
		req.Version = 1
		if err := tx.RecordTrail(ctx, s.trailEntry(id, actor.ID, shared.ApprovalSubmit, req.RequestReason, now)); err != nil {
			return err
		}
		if needed {
			return nil
		}
		t := Transition{
			ID:                 id,
			ExpectedVersion:    req.Version,
			Status:             StatusApproved,
			Hours:              req.Hours,
			ActionedByUserID:   req.RequestorID,
			ActionedByUserName: req.RequestorName,
			ActionedAt:         now,
			AuthorizationStart: now,
		}
		if err := tx.Transition(ctx, t); err != nil {
			return err
		}
		req = applyTransition(req, t)
		return tx.RecordTrail(ctx, s.trailEntry(id, actor.ID, shared.ApprovalApprove, "auto granted", now))
	})
	if err != nil {
		return AccessRequest{}, false, err
	}
	return req, !needed, nil
}

func (s *Service) buildRequest(actor identity.Principal, input SubmitInput, now time.Time) (AccessRequest, error) {
	if input.Hours <= 0 {
		return AccessRequest{}, fmt.Errorf("%w: hours must be positive", ErrValidation)
	}
	if input.Hours > s.maxHours {
		return AccessRequest{}, fmt.Errorf("%w: hours must not exceed %d", ErrValidation, s.maxHours)
	}
	if len(input.Resources) == 0 {
		return AccessRequest{}, fmt.Errorf("%w: at least one resource is required", ErrValidation)
	}
	if len(input.Users) == 0 {
		return AccessRequest{}, fmt.Errorf("%w: at least one user is required", ErrValidation)
	}
	if strings.TrimSpace(input.Account) == "" {
		return AccessRequest{}, fmt.Errorf("%w: account is required", ErrValidation)
	}
	platform := NormalizePlatform(input.Platform)
	req := AccessRequest{
		Account:        strings.ToUpper(strings.TrimSpace(input.Account)),
		Region:         strings.TrimSpace(input.Region),
		RequestorID:    actor.ID,
		RequestorName:  actor.Name,
		RequestorEmail: actor.Email,
		Hours:          input.Hours,
		RequestReason:  input.RequestReason,
		TicketID:       input.TicketID,
		Platform:       platform,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, in := range input.Resources {
		resPlatform := NormalizePlatform(in.Platform)
		if resPlatform != platform {
			return AccessRequest{}, fmt.Errorf("%w: resource platform doesn't match requested platform. Resource: %s Requested: %s",
				ErrValidation, in.Platform, input.Platform)
		}
		req.Resources = append(req.Resources, Resource{
			ResourceID:  strings.TrimSpace(in.ResourceID),
			Name:        in.Name,
			IP:          in.IP,
			Application: identity.NormalizeApplication(in.Application),
			Platform:    resPlatform,
		})
	}
	for _, in := range input.Users {
		if strings.TrimSpace(in.UserID) == "" {
			return AccessRequest{}, fmt.Errorf("%w: user id is required", ErrValidation)
		}
		req.Users = append(req.Users, User{UserID: InternalUserID(in.UserID), Name: in.Name, Email: in.Email})
	}
	return req, nil
}

// Approve grants a pending request for finalHours, replacing the requested hours.
func (s *Service) Approve(ctx context.Context, actor identity.Principal, id int64, comments string, finalHours int) (AccessRequest, error) {
	if !actor.IsApprover() {
		return AccessRequest{}, ErrForbidden
	}
	if finalHours <= 0 || finalHours > s.maxHours {
		return AccessRequest{}, fmt.Errorf("%w: hours must be between 1 and %d", ErrValidation, s.maxHours)
	}
	now := s.clock()
	updated, err := s.transition(ctx, id, func(req AccessRequest) (Transition, shared.ApprovalLog, error) {
		t := Transition{
			ID:                 req.ID,
			ExpectedVersion:    req.Version,
			Status:             StatusApproved,
			Comments:           comments,
			Hours:              finalHours,
			ActionedByUserID:   actor.ID,
			ActionedByUserName: actor.Name,
			ActionedAt:         now,
			AuthorizationStart: now,
		}
		return t, s.trailEntry(req.ID, actor.ID, shared.ApprovalApprove, comments, now), nil
	})
	if err != nil {
		return AccessRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "access.approved", id, map[string]any{"hours": updated.Hours})
	s.recordTransition(StatusApproved, false)
	s.afterGrant(ctx, updated)
	return updated, nil
}

// Reject declines a pending request.
func (s *Service) Reject(ctx context.Context, actor identity.Principal, id int64, comments string) (AccessRequest, error) {
	if !actor.IsApprover() {
		return AccessRequest{}, ErrForbidden
	}
	now := s.clock()
	updated, err := s.transition(ctx, id, func(req AccessRequest) (Transition, shared.ApprovalLog, error) {
		t := Transition{
			ID:                 req.ID,
			ExpectedVersion:    req.Version,
			Status:             StatusRejected,
			Comments:           comments,
			Hours:              req.Hours,
			ActionedByUserID:   actor.ID,
			ActionedByUserName: actor.Name,
			ActionedAt:         now,
		}
		return t, s.trailEntry(req.ID, actor.ID, shared.ApprovalReject, comments, now), nil
	})
	if err != nil {
		return AccessRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "access.rejected", id, nil)
	s.recordTransition(StatusRejected, false)
	if s.notifier != nil {
		if err := s.notifier.NotifyRejected(ctx, updated); err != nil {
			s.sideEffectFailed(ctx, updated, "notify rejected", err)
		}
	}
	return updated, nil
}

// Cancel withdraws a pending request. Approvers may cancel any request; other
// callers only the requests they submitted.
func (s *Service) Cancel(ctx context.Context, actor identity.Principal, id int64) (AccessRequest, error) {
	now := s.clock()
	var rule string
	updated, err := s.transition(ctx, id, func(req AccessRequest) (Transition, shared.ApprovalLog, error) {
		switch {
		case actor.IsApprover():
			rule = "approver"
		case strings.EqualFold(actor.ID, req.RequestorID):
			rule = "requestor"
		default:
			return Transition{}, shared.ApprovalLog{}, ErrForbidden
		}
		t := Transition{
			ID:                 req.ID,
			ExpectedVersion:    req.Version,
			Status:             StatusCanceled,
			Comments:           CancelComment,
			Hours:              req.Hours,
			ActionedByUserID:   actor.ID,
			ActionedByUserName: actor.Name,
			ActionedAt:         now,
		}
		return t, s.trailEntry(req.ID, actor.ID, shared.ApprovalCancel, CancelComment, now), nil
	})
	if err != nil {
		return AccessRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "access.canceled", id, map[string]any{"allowed_by": rule})
	s.recordTransition(StatusCanceled, false)
	if s.notifier != nil {
		if err := s.notifier.NotifyCanceled(ctx, updated); err != nil {
			s.sideEffectFailed(ctx, updated, "notify canceled", err)
		}
	}
	return updated, nil
}

type transitionFunc func(req AccessRequest) (Transition, shared.ApprovalLog, error)

// transition loads the request, applies build and writes the trail entry in one
// transaction. A request that is no longer pending yields ErrInvalidTransition.
func (s *Service) transition(ctx context.Context, id int64, build transitionFunc) (AccessRequest, error) {
	var updated AccessRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		t, entry, err := build(req)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrInvalidTransition
		}
		if err := tx.Transition(ctx, t); err != nil {
			return err
		}
		if err := tx.RecordTrail(ctx, entry); err != nil {
			return err
		}
		updated = applyTransition(req, t)
		return nil
	})
	if concurrentUpdate(err) {
		return AccessRequest{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err != nil {
		return AccessRequest{}, err
	}
	return updated, nil
}

func applyTransition(req AccessRequest, t Transition) AccessRequest {
	req.Status = t.Status
	req.ApproverComments = t.Comments
	req.Hours = t.Hours
	req.ActionedByUserID = t.ActionedByUserID
	req.ActionedByUserName = t.ActionedByUserName
	req.ActionedAt = t.ActionedAt
	req.AuthorizationStart = t.AuthorizationStart
	req.UpdatedAt = t.ActionedAt
	req.Version = t.ExpectedVersion + 1
	return req
}

// afterPending publishes the request event and notifies approvers.
func (s *Service) afterPending(ctx context.Context, req AccessRequest) {
	if s.events != nil {
		if err := s.events.Publish(ctx, req); err != nil {
			s.sideEffectFailed(ctx, req, "publish request event", err)
		}
	}
	if s.notifyOnRequest && s.notifier != nil {
		if err := s.notifier.NotifyRequested(ctx, req); err != nil {
			s.sideEffectFailed(ctx, req, "notify requested", err)
		}
	}
}

// afterGrant schedules the expiration trigger and sends the approval view.
func (s *Service) afterGrant(ctx context.Context, req AccessRequest) {
	if s.scheduler != nil {
		if err := s.scheduler.ScheduleExpiration(ctx, req.ID, req.ExpiresAt()); err != nil {
			s.sideEffectFailed(ctx, req, "schedule expiration", err)
		}
	}
	if s.notifier == nil {
		return
	}
	var event RequestEvent
	if s.tracker != nil {
		var err error
		event, err = s.tracker.ForEvent(ctx, EventApproval, req)
		if err != nil {
			s.sideEffectFailed(ctx, req, "build approval view", err)
			return
		}
	}
	if err := s.notifier.NotifyApproved(ctx, req, event); err != nil {
		s.sideEffectFailed(ctx, req, "notify approved", err)
	}
}

func (s *Service) sideEffectFailed(ctx context.Context, req AccessRequest, step string, err error) {
	s.logger.Error("access side effect failed",
		slog.String("step", step),
		slog.Int64("request_id", req.ID),
		slog.Any("error", err))
	if s.notifier == nil {
		return
	}
	if notifyErr := s.notifier.NotifyAdminsOfFailure(ctx, req, fmt.Errorf("%s: %w", step, err)); notifyErr != nil {
		s.logger.Error("notify admins of failure", slog.Int64("request_id", req.ID), slog.Any("error", notifyErr))
	}
}

// ListActive returns pending requests visible to actor, oldest first, with
// refreshed resource status.
func (s *Service) ListActive(ctx context.Context, actor identity.Principal) ([]RequestSummary, error) {
	reqs, err := s.repo.ListPending(ctx, s.listFilter(actor))
	if err != nil {
		return nil, err
	}
	reqs = Filter(reqs, actor.Role, actor.ID)
	s.refreshStatuses(ctx, reqs)
	out := make([]RequestSummary, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, summarize(req))
	}
	return out, nil
}

// ListCompleted returns actioned requests visible to actor, most recently
// updated first, with the derived expired status applied.
func (s *Service) ListCompleted(ctx context.Context, actor identity.Principal) ([]RequestSummary, error) {
	reqs, err := s.repo.ListCompleted(ctx, s.listFilter(actor))
	if err != nil {
		return nil, err
	}
	reqs = Filter(reqs, actor.Role, actor.ID)
	now := s.clock()
	out := make([]RequestSummary, 0, len(reqs))
	for _, req := range reqs {
		req.Status = req.EffectiveStatus(now)
		out = append(out, summarize(req))
	}
	return out, nil
}

// Get returns a single request visible to actor.
func (s *Service) Get(ctx context.Context, actor identity.Principal, id int64) (AccessRequest, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return AccessRequest{}, err
	}
	if len(Filter([]AccessRequest{req}, actor.Role, actor.ID)) == 0 {
		return AccessRequest{}, ErrRequestNotFound
	}
	req.Status = req.EffectiveStatus(s.clock())
	return req, nil
}

// History returns the recorded trail of a request visible to actor.
func (s *Service) History(ctx context.Context, actor identity.Principal, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.List(ctx, TrailModule, id)
}

// LiveView builds the approval or expiration view of a request.
func (s *Service) LiveView(ctx context.Context, actor identity.Principal, id int64, typ EventType) (RequestEvent, error) {
	if !seesAll(actor.Role) {
		return RequestEvent{}, ErrForbidden
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return RequestEvent{}, err
	}
	return s.tracker.ForEvent(ctx, typ, req)
}

// Expire processes the end of a grant window exactly once and notifies the
// affected users.
func (s *Service) Expire(ctx context.Context, id int64) (RequestEvent, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return RequestEvent{}, err
	}
	if req.Status != StatusApproved {
		return RequestEvent{}, fmt.Errorf("%w: request %d is %s", ErrInvalidTransition, id, req.Status)
	}
	if IsLive(req, req.AuthorizationStart, s.clock()) {
		return RequestEvent{}, fmt.Errorf("%w: request %d until %s", ErrStillLive, id, req.ExpiresAt().Format(time.RFC3339))
	}

	key := ExpirationKey(id)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "access.expire"); err != nil {
			return RequestEvent{}, err
		}
	}
	rollback := func() {
		if s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, key)
		}
	}
	event, err := s.tracker.ForEvent(ctx, EventExpiration, req)
	if err != nil {
		rollback()
		return RequestEvent{}, err
	}
	if err := s.notifyExpired(ctx, req, event); err != nil {
		rollback()
		return RequestEvent{}, fmt.Errorf("notify expired: %w", err)
	}
	s.recordAudit(ctx, req.RequestorID, "access.expired", id, map[string]any{"users": len(event.Users)})
	s.recordTransition(StatusExpired, true)
	return event, nil
}

// SweepExpired expires every grant in the lookback window whose window ended and
// that was not processed yet. It returns the ids expired by this sweep.
func (s *Service) SweepExpired(ctx context.Context) ([]int64, error) {
	elapsed, err := s.tracker.ElapsedGrants(ctx, s.clock())
	if err != nil {
		return nil, err
	}
	var (
		expired []int64
		errs    []error
	)
	for _, g := range elapsed {
		_, err := s.Expire(ctx, g.Request.ID)
		switch {
		case err == nil:
			expired = append(expired, g.Request.ID)
		case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, ErrStillLive), errors.Is(err, ErrInvalidTransition):
		default:
			s.logger.Error("expire request", slog.Int64("request_id", g.Request.ID), slog.Any("error", err))
			if s.notifier != nil {
				if opsErr := s.notifier.NotifyOps(ctx, g.Request.ID, err); opsErr != nil {
					s.logger.Error("notify ops", slog.Int64("request_id", g.Request.ID), slog.Any("error", opsErr))
				}
			}
			errs = append(errs, fmt.Errorf("request %d: %w", g.Request.ID, err))
		}
	}
	return expired, errors.Join(errs...)
}

// ExpirationKey is the idempotency key guarding expiration of a request.
func ExpirationKey(id int64) string {
	return "access:expire:" + strconv.FormatInt(id, 10)
}

// ExpirationUserKey guards the expired mail of one user of a request.
func ExpirationUserKey(id int64, userID string) string {
	return ExpirationKey(id) + ":" + strings.ToLower(userID)
}

// notifyExpired mails each user once. Users already mailed by an earlier
// attempt are skipped; a failed user releases its key for the retry.
func (s *Service) notifyExpired(ctx context.Context, req AccessRequest, event RequestEvent) error {
	if s.notifier == nil {
		return nil
	}
	if s.idempotency == nil {
		return s.notifier.NotifyExpired(ctx, req, event)
	}
	var errs []error
	for _, u := range req.Users {
		key := ExpirationUserKey(req.ID, u.UserID)
		err := s.idempotency.CheckAndInsert(ctx, key, "access.expire.user")
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.UserID, err))
			continue
		}
		one := req
		one.Users = []User{u}
		if err := s.notifier.NotifyExpired(ctx, one, event); err != nil {
			_ = s.idempotency.Delete(ctx, key)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refreshStatuses(ctx context.Context, reqs []AccessRequest) {
	if s.resources == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(statusRefreshConcurrency)
	for i := range reqs {
		req := &reqs[i]
		g.Go(func() error {
			statuses, err := s.resources.CheckStatus(ctx, req.Environment(), req.ResourceIDs())
			if err != nil {
				s.logger.Warn("resource status check failed", slog.Int64("request_id", req.ID), slog.Any("error", err))
			}
			for j := range req.Resources {
				status, ok := statuses[req.Resources[j].ResourceID]
				if !ok || status == "" {
					status = StatusUnknown
				}
				req.Resources[j].Status = status
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) listFilter(actor identity.Principal) ListFilter {
	if seesAll(actor.Role) {
		return ListFilter{}
	}
	return ListFilter{RequestorID: actor.ID}
}

func (s *Service) trailEntry(id int64, actorID string, action shared.ApprovalAction, note string, at time.Time) shared.ApprovalLog {
	return shared.ApprovalLog{Module: TrailModule, RefID: id, ActorID: actorID, Action: action, Note: note, At: at}
}

func (s *Service) recordAudit(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "access_request", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Int64("request_id", id), slog.Any("error", err))
	}
}

func (s *Service) recordTransition(status Status, auto bool) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(status), auto)
	}
}
