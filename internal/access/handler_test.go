package access

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
)

func newTestRouter(t *testing.T) (*harness, http.Handler) {
	t.Helper()
	h := newHarness(t)
	mw := identity.Middleware{Resolver: identity.NewResolver(identity.ResolverConfig{
		ApproverGroup:     "GK_APPROVERS",
		AuditorGroup:      "GK_AUDITORS",
		SupportGroup:      "GK_SUPPORT",
		OpsGroup:          "GK_OPS",
		ApplicationPrefix: "APP_",
	})}
	router := chi.NewRouter()
	router.Route("/access", NewHandler(nil, h.svc, mw).MountRoutes)
	return h, router
}

func doRequest(t *testing.T, router http.Handler, method, path, user, groups string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(identity.HeaderUserID, user)
		req.Header.Set(identity.HeaderName, user)
		req.Header.Set(identity.HeaderGroups, groups)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func submitBody(account string, hours int) map[string]any {
	return map[string]any{
		"account":        account,
		"region":         "us-east-1",
		"hours":          hours,
		"platform":       "Linux",
		"request_reason": "debug",
		"resources": []map[string]any{
			{"resource_id": "i-001", "name": "billing-api-1", "ip": "10.0.0.1", "application": "billing", "platform": "Linux"},
		},
		"users": []map[string]any{{"user_id": "alice", "email": "alice@example.com"}},
	}
}

func TestHandlerSubmitAndApproveFlow(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/access/requests", "ssup", "GK_SUPPORT", submitBody("prod1", 6))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, string(StatusPending), created.Status)
	require.Equal(t, "PROD1", created.Account)

	path := fmt.Sprintf("/access/requests/%d", created.ID)
	rec = doRequest(t, router, http.MethodPost, path+"/approve", "ssup", "GK_SUPPORT", map[string]any{"hours": 6})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, path+"/approve", "boss", "GK_APPROVERS", map[string]any{"comments": "ok", "hours": 6})
	require.Equal(t, http.StatusOK, rec.Code)
	var approved requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	require.Equal(t, string(StatusApproved), approved.Status)
	require.NotNil(t, approved.ExpiresAt)

	rec = doRequest(t, router, http.MethodPost, path+"/reject", "boss", "GK_APPROVERS", map[string]any{"comments": "late"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "request already actioned")

	rec = doRequest(t, router, http.MethodGet, path+"/live?event=approval", "audit", "GK_AUDITORS", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var event RequestEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	require.Len(t, event.Users, 1)
	require.Equal(t, "alice", event.Users[0].UserID)

	rec = doRequest(t, router, http.MethodGet, path+"/live", "ssup", "GK_SUPPORT", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerAutoGrantReturnsCreated(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/access/requests", "jdoe", "APP_BILLING", submitBody("qa1", 2))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandlerRejectsInvalidPayloads(t *testing.T) {
	_, router := newTestRouter(t)

	body := submitBody("qa1", 2)
	body["users"] = []map[string]any{}
	rec := doRequest(t, router, http.MethodPost, "/access/requests", "jdoe", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body = submitBody("qa1", 2)
	body["platform"] = "Windows"
	rec = doRequest(t, router, http.MethodPost, "/access/requests", "jdoe", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "doesn't match requested platform")

	req := httptest.NewRequest(http.MethodPost, "/access/requests", bytes.NewBufferString("{"))
	req.Header.Set(identity.HeaderUserID, "jdoe")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rec = doRequest(t, router, http.MethodGet, "/access/requests/abc", "jdoe", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPolicyLookupFailure(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/access/requests", "jdoe", "", submitBody("stage1", 2))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "approval policy not configured")
}

func TestHandlerDuplicateSubmission(t *testing.T) {
	_, router := newTestRouter(t)
	send := func() int {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(submitBody("prod1", 6)))
		req := httptest.NewRequest(http.MethodPost, "/access/requests", &buf)
		req.Header.Set(identity.HeaderUserID, "ssup")
		req.Header.Set(identity.HeaderGroups, "GK_SUPPORT")
		req.Header.Set(IdempotencyHeader, "submit-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusAccepted, send())
	require.Equal(t, http.StatusConflict, send())
}

func TestHandlerReadPathsAreFiltered(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/access/requests", "ssup", "GK_SUPPORT", submitBody("prod1", 6))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/access/requests/%d", created.ID), "jdoe", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/access/requests/active", "jdoe", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Zero(t, list.Count)

	rec = doRequest(t, router, http.MethodGet, "/access/requests/active", "boss", "GK_APPROVERS", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, StatusUnknown, list.Requests[0].Resources[0].Status)

	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/access/requests/%d/cancel", created.ID), "SSUP", "GK_SUPPORT", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/access/requests/completed", "ssup", "GK_SUPPORT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, string(StatusCanceled), list.Requests[0].Status)
}

func TestHandlerRequiresIdentity(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/access/requests/active", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerHistory(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/access/requests", "ssup", "GK_SUPPORT", submitBody("prod1", 6))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/access/requests/%d/history", created.ID), "audit", "GK_AUDITORS", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Entries, 1)
	require.Equal(t, "SUBMIT", history.Entries[0].Action)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/access/requests/%d/history", created.ID), "jdoe", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerApproveRequiresHours(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/access/requests", "ssup", "GK_SUPPORT", submitBody("prod1", 6))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := fmt.Sprintf("/access/requests/%d/approve", created.ID)
	rec = doRequest(t, router, http.MethodPost, path, "boss", "GK_APPROVERS", map[string]any{"comments": "ok"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, path, "boss", "GK_APPROVERS", map[string]any{"hours": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	var approved requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	require.Equal(t, 3, approved.Hours)
}
