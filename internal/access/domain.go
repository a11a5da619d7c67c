package access

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the stored lifecycle state of an access request.
type Status string

const (
	StatusPending  Status = "REQUESTED"
	StatusApproved Status = "APPROVAL_GRANTED"
	StatusRejected Status = "APPROVAL_REJECTED"
	StatusCanceled Status = "CANCELED"
	// StatusExpired is derived from an approved request whose window elapsed. It
	// is never written to the store.
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Platform tags the kind of resource a request targets.
type Platform string

const (
	PlatformLinux    Platform = "Linux"
	PlatformWindows  Platform = "Windows"
	PlatformDatabase Platform = "Database"
)

var platformCaser = cases.Title(language.Und)

// NormalizePlatform canonicalises user supplied platform tags ("linux" -> "Linux").
func NormalizePlatform(raw string) Platform {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return Platform(platformCaser.String(strings.ToLower(raw)))
}

// UserIDPrefix marks gatekeeper managed user ids.
const UserIDPrefix = "gk-"

// InternalUserID prefixes an external user id, leaving prefixed ids untouched.
func InternalUserID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, UserIDPrefix) {
		return id
	}
	return UserIDPrefix + id
}

// NormalizeUserID strips the internal prefix from a user id.
func NormalizeUserID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), UserIDPrefix)
}

// StatusUnknown is reported for resources whose runtime status could not be determined.
const StatusUnknown = "Unknown"

// Resource is a target compute instance or database.
type Resource struct {
	ID          int64
	ResourceID  string
	Name        string
	IP          string
	Application string
	Platform    Platform
	Status      string
}

// User is a person receiving access.
type User struct {
	ID     int64
	UserID string
	Name   string
	Email  string
}

// Environment identifies the account and region hosting the resources.
type Environment struct {
	Account string
	Region  string
}

// AccessRequest is the central lifecycle entity.
type AccessRequest struct {
	ID                 int64
	Account            string
	Region             string
	RequestorID        string
	RequestorName      string
	RequestorEmail     string
	Hours              int
	RequestReason      string
	TicketID           string
	Platform           Platform
	ApproverComments   string
	ActionedByUserID   string
	ActionedByUserName string
	Status             Status
	Version            int64
	AuthorizationStart time.Time
	ActionedAt         time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Resources          []Resource
	Users              []User
}

// Environment returns the account/region pair of the request.
func (r AccessRequest) Environment() Environment {
	return Environment{Account: r.Account, Region: r.Region}
}

// ResourceIDs lists the targeted resource identifiers.
func (r AccessRequest) ResourceIDs() []string {
	ids := make([]string, 0, len(r.Resources))
	for _, res := range r.Resources {
		ids = append(ids, res.ResourceID)
	}
	return ids
}

// Applications lists the owning application of every resource.
func (r AccessRequest) Applications() []string {
	apps := make([]string, 0, len(r.Resources))
	for _, res := range r.Resources {
		apps = append(apps, res.Application)
	}
	return apps
}

// HasUser reports whether the internal user id participates in the request.
func (r AccessRequest) HasUser(userID string) bool {
	for _, u := range r.Users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// ExpiresAt returns the end of the authorised window, zero when never granted.
func (r AccessRequest) ExpiresAt() time.Time {
	if r.AuthorizationStart.IsZero() {
		return time.Time{}
	}
	return r.AuthorizationStart.Add(time.Duration(r.Hours) * time.Hour)
}

// EffectiveStatus applies the derived EXPIRED state at now.
func (r AccessRequest) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusApproved && !r.AuthorizationStart.IsZero() && !IsLive(r, r.AuthorizationStart, now) {
		return StatusExpired
	}
	return r.Status
}

// RequestSummary is a request enriched with association counts for listings.
type RequestSummary struct {
	AccessRequest
	ResourceCount int
	UserCount     int
}

func summarize(req AccessRequest) RequestSummary {
	return RequestSummary{AccessRequest: req, ResourceCount: len(req.Resources), UserCount: len(req.Users)}
}

// Transition describes a guarded status change of a pending request.
type Transition struct {
	ID                 int64
	ExpectedVersion    int64
	Status             Status
	Comments           string
	Hours              int
	ActionedByUserID   string
	ActionedByUserName string
	ActionedAt         time.Time
	AuthorizationStart time.Time
}

var (
	// ErrValidation indicates invalid submission input.
	ErrValidation = errors.New("access: invalid request")
	// ErrPolicyLookup indicates the approval policy could not be resolved.
	ErrPolicyLookup = errors.New("access: approval policy lookup failed")
	// ErrRequestNotFound indicates the request id does not exist or is not visible.
	ErrRequestNotFound = errors.New("access: request not found")
	// ErrInvalidTransition occurs when the request was already actioned.
	ErrInvalidTransition = errors.New("access: request already actioned")
	// ErrForbidden indicates the caller's role may not perform the operation.
	ErrForbidden = errors.New("access: operation not permitted for role")
	// ErrUnknownRole indicates an unreachable role value.
	ErrUnknownRole = errors.New("access: could not determine role")
	// ErrStillLive occurs when an expiration trigger fires before the window ends.
	ErrStillLive = errors.New("access: grant still live")
)
