package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testResolver() *Resolver {
	return NewResolver(ResolverConfig{
		ApproverGroup:     "GK_APPROVERS",
		AuditorGroup:      "GK_AUDITORS",
		SupportGroup:      "GK_SUPPORT",
		OpsGroup:          "GK_OPS",
		ApplicationPrefix: "APP_",
	})
}

func TestResolvePrefersMostPrivilegedRole(t *testing.T) {
	role, _ := testResolver().Resolve([]string{"gk_support", "GK_APPROVERS"})
	require.Equal(t, RoleApprover, role)
}

func TestResolveDefaultsToDev(t *testing.T) {
	role, apps := testResolver().Resolve([]string{"APP_billing", "APP_ledger", "random"})
	require.Equal(t, RoleDev, role)
	require.Equal(t, []string{"BILLING", "LEDGER"}, apps)
}

func TestMiddlewareRejectsAnonymous(t *testing.T) {
	mw := Middleware{Resolver: testResolver()}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareStoresPrincipal(t *testing.T) {
	mw := Middleware{Resolver: testResolver()}
	var got Principal
	handler := mw.Authenticate(mw.RequireAny(RoleOps)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "jdoe")
	req.Header.Set(HeaderEmail, "jdoe@example.com")
	req.Header.Set(HeaderGroups, "GK_OPS, APP_BILLING")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jdoe", got.ID)
	require.Equal(t, RoleOps, got.Role)
	require.Equal(t, []string{"BILLING"}, got.Memberships)
}

func TestRequireAnyForbidsOtherRoles(t *testing.T) {
	mw := Middleware{Resolver: testResolver()}
	handler := mw.Authenticate(mw.RequireAny(RoleApprover)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "jdoe")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
