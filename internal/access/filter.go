package access

import (
	"strings"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
)

// Filter restricts results to what the caller may see. Approvers and auditors
// see everything; other roles only their own requests.
func Filter[T interface{ requestor() string }](results []T, role identity.Role, callerID string) []T {
	if seesAll(role) {
		return results
	}
	out := make([]T, 0, len(results))
	for _, r := range results {
		if strings.EqualFold(r.requestor(), callerID) {
			out = append(out, r)
		}
	}
	return out
}

func seesAll(role identity.Role) bool {
	return role == identity.RoleApprover || role == identity.RoleAuditor
}

func (r AccessRequest) requestor() string { return r.RequestorID }

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
