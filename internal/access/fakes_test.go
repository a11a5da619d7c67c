package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]AccessRequest
	trail    []shared.ApprovalLog
	// transitionErr is returned by every Transition when set.
	transitionErr error
}

func newMemRepo() *memRepo {
	return &memRepo{requests: make(map[int64]AccessRequest)}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]AccessRequest, len(r.requests))
	for id, req := range r.requests {
		snapshot[id] = cloneRequest(req)
	}
	trailLen, nextID := len(r.trail), r.nextID
	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.requests = snapshot
		r.trail = r.trail[:trailLen]
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *memRepo) get(id int64) (AccessRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return AccessRequest{}, ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

func (r *memRepo) GetMany(_ context.Context, ids []int64) ([]AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AccessRequest
	for _, id := range ids {
		if req, ok := r.requests[id]; ok {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}

func (r *memRepo) list(filter ListFilter, keep func(AccessRequest) bool) []AccessRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AccessRequest
	for _, req := range r.requests {
		if !keep(req) {
			continue
		}
		if filter.RequestorID != "" && !strings.EqualFold(filter.RequestorID, req.RequestorID) {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	return out
}

func (r *memRepo) ListPending(_ context.Context, filter ListFilter) ([]AccessRequest, error) {
	out := r.list(filter, func(req AccessRequest) bool { return req.Status == StatusPending })
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memRepo) ListCompleted(_ context.Context, filter ListFilter) ([]AccessRequest, error) {
	out := r.list(filter, func(req AccessRequest) bool { return req.Status != StatusPending })
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *memRepo) LatestByAction(_ context.Context, module string, action shared.ApprovalAction, from, to time.Time) (map[int64]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[int64]time.Time)
	for _, entry := range r.trail {
		if entry.Module != module || entry.Action != action {
			continue
		}
		if entry.At.Before(from) || entry.At.After(to) {
			continue
		}
		if cur, ok := latest[entry.RefID]; !ok || entry.At.After(cur) {
			latest[entry.RefID] = entry.At
		}
	}
	return latest, nil
}

func (r *memRepo) List(_ context.Context, module string, ref int64) ([]shared.ApprovalLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.ApprovalLog
	for _, entry := range r.trail {
		if entry.Module == module && entry.RefID == ref {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memRepo) trailFor(id int64) []shared.ApprovalAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var actions []shared.ApprovalAction
	for _, entry := range r.trail {
		if entry.RefID == id {
			actions = append(actions, entry.Action)
		}
	}
	return actions
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) Create(_ context.Context, req AccessRequest) (int64, error) {
	t.repo.nextID++
	req.ID = t.repo.nextID
	req.Version = 1
	req.Status = StatusPending
	t.repo.requests[req.ID] = cloneRequest(req)
	return req.ID, nil
}

func (t *memTx) Get(_ context.Context, id int64) (AccessRequest, error) {
	return t.repo.get(id)
}

func (t *memTx) Transition(_ context.Context, tr Transition) error {
	if t.repo.transitionErr != nil {
		return t.repo.transitionErr
	}
	req, ok := t.repo.requests[tr.ID]
	if !ok || req.Status != StatusPending || req.Version != tr.ExpectedVersion {
		return ErrInvalidTransition
	}
	t.repo.requests[tr.ID] = applyTransition(req, tr)
	return nil
}

func (t *memTx) RecordTrail(_ context.Context, entry shared.ApprovalLog) error {
	t.repo.trail = append(t.repo.trail, entry)
	return nil
}

func cloneRequest(req AccessRequest) AccessRequest {
	req.Resources = append([]Resource(nil), req.Resources...)
	req.Users = append([]User(nil), req.Users...)
	return req
}

type fakeClassifier map[string]string

func (f fakeClassifier) ClassifySdlc(_ context.Context, alias string) (string, error) {
	sdlc, ok := f[strings.ToUpper(alias)]
	if !ok {
		return "", fmt.Errorf("account %s not registered", alias)
	}
	return sdlc, nil
}

type fakeResources struct {
	mu         sync.Mutex
	invalid    map[string]bool
	statuses   map[string]string
	statusErr  error
	checkCalls int
}

func (f *fakeResources) ValidateTargets(_ context.Context, _ Environment, ids []string) error {
	for _, id := range ids {
		if f.invalid[id] {
			return fmt.Errorf("resource %s not found in environment", id)
		}
	}
	return nil
}

func (f *fakeResources) CheckStatus(_ context.Context, _ Environment, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	out := make(map[string]string)
	for _, id := range ids {
		if status, ok := f.statuses[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

type expiredCall struct {
	req   AccessRequest
	event RequestEvent
}

type recordingNotifier struct {
	mu        sync.Mutex
	requested []int64
	approved  []expiredCall
	rejected  []int64
	canceled  []int64
	expired   []expiredCall
	failures  []string
	ops       []int64
	expireErr error
	opsErr    error
	// expireFailUser fails the expired mail of one internal user id.
	expireFailUser string
}

func (n *recordingNotifier) NotifyRequested(_ context.Context, req AccessRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, req.ID)
	return nil
}

func (n *recordingNotifier) NotifyApproved(_ context.Context, req AccessRequest, event RequestEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, expiredCall{req: req, event: event})
	return nil
}

func (n *recordingNotifier) NotifyRejected(_ context.Context, req AccessRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, req.ID)
	return nil
}

func (n *recordingNotifier) NotifyCanceled(_ context.Context, req AccessRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, req.ID)
	return nil
}

func (n *recordingNotifier) NotifyExpired(_ context.Context, req AccessRequest, event RequestEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.expireErr != nil {
		return n.expireErr
	}
	for _, u := range req.Users {
		if n.expireFailUser != "" && u.UserID == n.expireFailUser {
			return fmt.Errorf("user %s: enqueue mail: queue down", u.UserID)
		}
	}
	n.expired = append(n.expired, expiredCall{req: req, event: event})
	return nil
}

func (n *recordingNotifier) expiredMails() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int)
	for _, call := range n.expired {
		for _, u := range call.req.Users {
			out[u.Email]++
		}
	}
	return out
}

func (n *recordingNotifier) NotifyAdminsOfFailure(_ context.Context, _ AccessRequest, cause error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, cause.Error())
	return nil
}

func (n *recordingNotifier) NotifyOps(_ context.Context, requestID int64, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, requestID)
	return n.opsErr
}

type scheduled struct {
	id int64
	at time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (s *fakeScheduler) ScheduleExpiration(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduled{id: id, at: at})
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []int64
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, req AccessRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, req.ID)
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]string)}
}

func (m *memIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		return errors.New("idempotency key required")
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memAudit) last(action string) (shared.AuditLog, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.logs) - 1; i >= 0; i-- {
		if a.logs[i].Action == action {
			return a.logs[i], true
		}
	}
	return shared.AuditLog{}, false
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
