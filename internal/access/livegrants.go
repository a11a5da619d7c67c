package access

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

// TrailModule tags access request rows in the approvals trail.
const TrailModule = "ACCESS"

// EventType selects how a request is folded into the live view.
type EventType string

const (
	EventApproval   EventType = "APPROVAL"
	EventExpiration EventType = "EXPIRATION"
)

// ParseEventType resolves a case-insensitive event name.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(upper(raw)) {
	case EventApproval:
		return EventApproval, nil
	case EventExpiration:
		return EventExpiration, nil
	}
	return "", fmt.Errorf("%w: unknown event type %q", ErrValidation, raw)
}

// LiveGrant pairs a granted request with the start of its window.
type LiveGrant struct {
	Request AccessRequest
	Start   time.Time
}

// ResourceRef identifies a resource inside a user view.
type ResourceRef struct {
	RequestID int64  `json:"request_id"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
}

// AccessBuckets partitions resources by platform.
type AccessBuckets struct {
	Linux    []ResourceRef `json:"linux"`
	Windows  []ResourceRef `json:"windows"`
	Database []ResourceRef `json:"database"`
}

func (b *AccessBuckets) add(platform Platform, ref ResourceRef) {
	switch NormalizePlatform(string(platform)) {
	case PlatformLinux:
		b.Linux = append(b.Linux, ref)
	case PlatformWindows:
		b.Windows = append(b.Windows, ref)
	case PlatformDatabase:
		b.Database = append(b.Database, ref)
	}
}

// Empty reports whether no bucket holds a resource.
func (b AccessBuckets) Empty() bool {
	return len(b.Linux) == 0 && len(b.Windows) == 0 && len(b.Database) == 0
}

// UserAccess is the per-user projection of live and just-expired access.
type UserAccess struct {
	UserID   string        `json:"user_id"`
	GKUserID string        `json:"gk_user_id"`
	Email    string        `json:"email"`
	Active   AccessBuckets `json:"active"`
	Expired  AccessBuckets `json:"expired"`
}

// RequestEvent is the live view built for an approval or expiration.
type RequestEvent struct {
	Type       EventType    `json:"type"`
	RequestID  int64        `json:"request_id"`
	Users      []UserAccess `json:"users"`
	ComputedAt time.Time    `json:"computed_at"`
}

// IsLive reports whether a grant starting at start is still within its window.
// The window end itself counts as expired.
func IsLive(req AccessRequest, start, now time.Time) bool {
	return now.Before(start.Add(time.Duration(req.Hours) * time.Hour))
}

// Tracker derives the set of live grants from the grant trail and the request store.
type Tracker struct {
	repo     Repository
	trail    GrantTrail
	lookback time.Duration
	logger   *slog.Logger
	clock    func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(repo Repository, trail GrantTrail, lookback time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{repo: repo, trail: trail, lookback: lookback, logger: logger, clock: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	if clock != nil {
		t.clock = clock
	}
	return t
}

// Lookback returns the trail window scanned for grants.
func (t *Tracker) Lookback() time.Duration {
	return t.lookback
}

// ComputeLiveGrants returns granted requests with an APPROVE trail entry inside
// [now-lookback, now]. Requests absent from the trail are excluded.
func (t *Tracker) ComputeLiveGrants(ctx context.Context, now time.Time, lookback time.Duration) ([]LiveGrant, error) {
	starts, err := t.trail.LatestByAction(ctx, TrailModule, shared.ApprovalApprove, now.Add(-lookback), now)
	if err != nil {
		return nil, fmt.Errorf("load grant trail: %w", err)
	}
	if len(starts) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(starts))
	for id := range starts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	reqs, err := t.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load granted requests: %w", err)
	}
	grants := make([]LiveGrant, 0, len(reqs))
	for _, req := range reqs {
		if req.Status != StatusApproved {
			continue
		}
		grants = append(grants, LiveGrant{Request: req, Start: starts[req.ID]})
	}
	return grants, nil
}

// LiveRequests returns the grants still live at now.
func (t *Tracker) LiveRequests(ctx context.Context, now time.Time) ([]LiveGrant, error) {
	grants, err := t.ComputeLiveGrants(ctx, now, t.lookback)
	if err != nil {
		return nil, err
	}
	live := grants[:0]
	for _, g := range grants {
		if IsLive(g.Request, g.Start, now) {
			live = append(live, g)
		}
	}
	return live, nil
}

// ElapsedGrants returns grants inside the lookback window whose window has ended.
func (t *Tracker) ElapsedGrants(ctx context.Context, now time.Time) ([]LiveGrant, error) {
	grants, err := t.ComputeLiveGrants(ctx, now, t.lookback)
	if err != nil {
		return nil, err
	}
	var elapsed []LiveGrant
	for _, g := range grants {
		if !IsLive(g.Request, g.Start, now) {
			elapsed = append(elapsed, g)
		}
	}
	return elapsed, nil
}

// BuildUserView projects live grants onto the given users.
func BuildUserView(live []LiveGrant, users []User) []UserAccess {
	view := make([]UserAccess, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, ok := seen[u.UserID]; ok {
			continue
		}
		seen[u.UserID] = struct{}{}
		access := UserAccess{
			UserID:   NormalizeUserID(u.UserID),
			GKUserID: u.UserID,
			Email:    u.Email,
		}
		for _, g := range live {
			if !g.Request.HasUser(u.UserID) {
				continue
			}
			for _, res := range g.Request.Resources {
				access.Active.add(res.Platform, ResourceRef{RequestID: g.Request.ID, Name: res.Name, IP: res.IP})
			}
		}
		view = append(view, access)
	}
	return view
}

// ForEvent builds the live view for the users of req after an approval or
// expiration.
func (t *Tracker) ForEvent(ctx context.Context, typ EventType, req AccessRequest) (RequestEvent, error) {
	now := t.clock()
	live, err := t.LiveRequests(ctx, now)
	if err != nil {
		return RequestEvent{}, err
	}
	switch typ {
	case EventApproval:
		present := false
		for _, g := range live {
			if g.Request.ID == req.ID {
				present = true
				break
			}
		}
		if !present {
			live = append(live, LiveGrant{Request: req, Start: req.AuthorizationStart})
		}
	case EventExpiration:
		kept := live[:0]
		for _, g := range live {
			if g.Request.ID != req.ID {
				kept = append(kept, g)
			}
		}
		live = kept
	default:
		return RequestEvent{}, fmt.Errorf("%w: unknown event type %q", ErrValidation, typ)
	}

	users := BuildUserView(live, req.Users)
	if typ == EventExpiration {
		for i := range users {
			for _, res := range req.Resources {
				users[i].Expired.add(res.Platform, ResourceRef{RequestID: req.ID, Name: res.Name, IP: res.IP})
			}
		}
	}
	t.logger.Debug("live view computed",
		slog.String("event", string(typ)),
		slog.Int64("request_id", req.ID),
		slog.Int("live_grants", len(live)))
	return RequestEvent{Type: typ, RequestID: req.ID, Users: users, ComputedAt: now}, nil
}
