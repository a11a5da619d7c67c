package policy

import (
	"fmt"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
)

// rule decides whether approval is required. threshold is resolved lazily so
// roles that never consult the policy do not need one configured.
type rule func(in Input, threshold func() (int, error)) (bool, error)

var rules = map[identity.Role]rule{
	identity.RoleApprover: never,
	identity.RoleSupport:  exceedsThreshold,
	identity.RoleAuditor:  exceedsThresholdOrUnowned,
	identity.RoleDev:      exceedsThresholdOrUnowned,
	identity.RoleOps:      exceedsThresholdOrUnowned,
}

// Evaluator performs pure approval decisions against an ApprovalPolicy.
type Evaluator struct {
	policy ApprovalPolicy
}

// NewEvaluator builds a deterministic, side-effect free evaluator.
func NewEvaluator(p ApprovalPolicy) Evaluator {
	return Evaluator{policy: p}
}

// IsApprovalNeeded reports whether a request described by in needs a human approver.
func (e Evaluator) IsApprovalNeeded(in Input) (bool, error) {
	decide, ok := rules[in.Role]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, in.Role)
	}
	return decide(in, func() (int, error) {
		hours, ok := e.policy.Threshold(in.Role, in.SDLC)
		if !ok {
			return 0, fmt.Errorf("%w: role %s sdlc %q", ErrLookup, in.Role, in.SDLC)
		}
		return hours, nil
	})
}

func never(Input, func() (int, error)) (bool, error) {
	return false, nil
}

func exceedsThreshold(in Input, threshold func() (int, error)) (bool, error) {
	limit, err := threshold()
	if err != nil {
		return false, err
	}
	return in.Hours > limit, nil
}

func exceedsThresholdOrUnowned(in Input, threshold func() (int, error)) (bool, error) {
	exceeds, err := exceedsThreshold(in, threshold)
	if err != nil {
		return false, err
	}
	return exceeds || !ownsAll(in.Applications, in.Memberships), nil
}

// ownsAll is false as soon as one application is missing from memberships.
func ownsAll(applications, memberships []string) bool {
	p := identity.Principal{Memberships: memberships}
	owned := p.MembershipSet()
	for _, app := range applications {
		if _, ok := owned[identity.NormalizeApplication(app)]; !ok {
			return false
		}
	}
	return true
}
