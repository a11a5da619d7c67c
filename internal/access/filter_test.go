package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
)

func TestFilter(t *testing.T) {
	results := []AccessRequest{
		{ID: 1, RequestorID: "JDoe"},
		{ID: 2, RequestorID: "mroe"},
		{ID: 3, RequestorID: "jdoe"},
	}

	require.Len(t, Filter(results, identity.RoleApprover, "nobody"), 3)
	require.Len(t, Filter(results, identity.RoleAuditor, "nobody"), 3)

	for _, role := range []identity.Role{identity.RoleDev, identity.RoleOps, identity.RoleSupport} {
		own := Filter(results, role, "jdoe")
		require.Len(t, own, 2, "role %s", role)
		require.Equal(t, int64(1), own[0].ID)
		require.Equal(t, int64(3), own[1].ID)
	}
	require.Empty(t, Filter(results, identity.RoleDev, "someone"))
}

func TestFilterSummaries(t *testing.T) {
	items := []RequestSummary{
		summarize(AccessRequest{ID: 1, RequestorID: "a"}),
		summarize(AccessRequest{ID: 2, RequestorID: "b"}),
	}
	out := Filter(items, identity.RoleDev, "B")
	require.Len(t, out, 1)
	require.Equal(t, int64(2), out[0].ID)
}
