package policy

import (
	"errors"
	"strings"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
)

var (
	// ErrLookup indicates a missing threshold for the role and SDLC class.
	ErrLookup = errors.New("policy: threshold lookup failed")
	// ErrUnknownRole indicates a role outside the supported set.
	ErrUnknownRole = errors.New("policy: could not determine role")
)

// Thresholds maps an SDLC class to the maximum hours granted without approval.
type Thresholds map[string]int

// ApprovalPolicy maps each role to its thresholds. It is read-only after
// construction and safe for concurrent use.
type ApprovalPolicy map[identity.Role]Thresholds

// Threshold returns the hour limit configured for role and sdlc.
func (p ApprovalPolicy) Threshold(role identity.Role, sdlc string) (int, bool) {
	byClass, ok := p[role]
	if !ok {
		return 0, false
	}
	hours, ok := byClass[normalizeSdlc(sdlc)]
	return hours, ok
}

// NewApprovalPolicy copies the configured maps, normalising SDLC keys.
func NewApprovalPolicy(byRole map[identity.Role]map[string]int) ApprovalPolicy {
	out := make(ApprovalPolicy, len(byRole))
	for role, classes := range byRole {
		t := make(Thresholds, len(classes))
		for sdlc, hours := range classes {
			t[normalizeSdlc(sdlc)] = hours
		}
		out[role] = t
	}
	return out
}

// Input is the evaluation context for one request.
type Input struct {
	Role  identity.Role
	SDLC  string
	Hours int
	// Applications lists the owning application of every targeted resource.
	Applications []string
	Memberships  []string
}

func normalizeSdlc(sdlc string) string {
	return strings.ToLower(strings.TrimSpace(sdlc))
}
