package identity

import (
	"sort"
	"strings"
)

// Role is the gatekeeper role of an authenticated caller.
type Role string

const (
	RoleApprover Role = "APPROVER"
	RoleAuditor  Role = "AUDITOR"
	RoleSupport  Role = "SUPPORT"
	RoleDev      Role = "DEV"
	RoleOps      Role = "OPS"
)

// ParseRole maps a case-insensitive role name to a Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleApprover:
		return RoleApprover, true
	case RoleAuditor:
		return RoleAuditor, true
	case RoleSupport:
		return RoleSupport, true
	case RoleDev:
		return RoleDev, true
	case RoleOps:
		return RoleOps, true
	default:
		return "", false
	}
}

// Principal describes the authenticated actor.
type Principal struct {
	ID          string
	Name        string
	Email       string
	Role        Role
	Memberships []string
}

// IsApprover reports whether the principal may action requests.
func (p Principal) IsApprover() bool {
	return p.Role == RoleApprover
}

// MembershipSet returns memberships normalised to upper case.
func (p Principal) MembershipSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Memberships))
	for _, m := range p.Memberships {
		m = NormalizeApplication(m)
		if m == "" {
			continue
		}
		set[m] = struct{}{}
	}
	return set
}

// NormalizeApplication canonicalises an owning-application tag.
func NormalizeApplication(app string) string {
	return strings.ToUpper(strings.TrimSpace(app))
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
