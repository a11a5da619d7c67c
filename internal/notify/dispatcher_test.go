package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gatekeeper/internal/access"
	"github.com/odyssey-erp/gatekeeper/internal/view"
	"github.com/odyssey-erp/gatekeeper/jobs"
)

type captureQueue struct {
	sent []jobs.SendEmailPayload
	err  error
}

func (q *captureQueue) EnqueueSendEmail(_ context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.sent = append(q.sent, payload)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func newDispatcher(t *testing.T) (*Dispatcher, *captureQueue) {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	q := &captureQueue{}
	cfg := Config{ApproverEmail: "approvers@example.com, leads@example.com", TeamEmail: "team@example.com", OpsEmail: "ops@example.com"}
	return NewDispatcher(cfg, q, engine, nil), q
}

func sampleRequest() access.AccessRequest {
	return access.AccessRequest{
		ID:                 11,
		Account:            "QA1",
		Region:             "us-east-1",
		RequestorID:        "alice",
		RequestorName:      "Alice",
		RequestorEmail:     "alice@example.com",
		Hours:              4,
		RequestReason:      "debug",
		Platform:           access.PlatformLinux,
		ActionedByUserName: "Bob",
		AuthorizationStart: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Resources:          []access.Resource{{ResourceID: "i-1", Name: "web-1", IP: "10.0.0.1", Platform: access.PlatformLinux}},
		Users: []access.User{
			{UserID: "gk-alice", Name: "Alice", Email: "alice@example.com"},
			{UserID: "gk-carol", Name: "Carol", Email: "carol@example.com"},
			{UserID: "gk-dave", Name: "Dave"},
		},
	}
}

func TestNotifyRequestedMailsApprovers(t *testing.T) {
	d, q := newDispatcher(t)
	require.NoError(t, d.NotifyRequested(context.Background(), sampleRequest()))
	require.Len(t, q.sent, 1)
	require.Equal(t, []string{"approvers@example.com", "leads@example.com"}, q.sent[0].To)
	require.Equal(t, "GATEKEEPER: Access Requested (11)", q.sent[0].Subject)
	require.Contains(t, q.sent[0].Body, "web-1")
}

func TestNotifyApprovedCopiesUsers(t *testing.T) {
	d, q := newDispatcher(t)
	req := sampleRequest()
	event := access.RequestEvent{Type: access.EventApproval, RequestID: req.ID, Users: []access.UserAccess{{
		UserID: "alice", GKUserID: "gk-alice",
		Active: access.AccessBuckets{Linux: []access.ResourceRef{{RequestID: 11, Name: "web-1", IP: "10.0.0.1"}}},
	}}}
	require.NoError(t, d.NotifyApproved(context.Background(), req, event))
	require.Len(t, q.sent, 1)
	require.Equal(t, []string{"alice@example.com"}, q.sent[0].To)
	require.Equal(t, []string{"carol@example.com"}, q.sent[0].Cc)
	require.Contains(t, q.sent[0].Body, "granted by Bob")
	require.Contains(t, q.sent[0].Body, "01 May 2024 14:00 UTC")
}

func TestNotifyCanceledCopiesRequestor(t *testing.T) {
	d, q := newDispatcher(t)
	require.NoError(t, d.NotifyCanceled(context.Background(), sampleRequest()))
	require.Equal(t, []string{"alice@example.com"}, q.sent[0].Cc)
	require.True(t, strings.HasSuffix(q.sent[0].Subject, "was canceled"))
}

func TestNotifyExpiredPerUser(t *testing.T) {
	d, q := newDispatcher(t)
	req := sampleRequest()
	event := access.RequestEvent{Type: access.EventExpiration, RequestID: req.ID, Users: []access.UserAccess{
		{
			UserID: "alice", GKUserID: "gk-alice",
			Active:  access.AccessBuckets{Database: []access.ResourceRef{{RequestID: 9, Name: "orders-db"}}},
			Expired: access.AccessBuckets{Linux: []access.ResourceRef{{RequestID: 11, Name: "web-1"}}},
		},
	}}
	require.NoError(t, d.NotifyExpired(context.Background(), req, event))
	require.Len(t, q.sent, 2)
	require.Equal(t, []string{"alice@example.com"}, q.sent[0].To)
	require.Contains(t, q.sent[0].Body, "orders-db")
	require.Contains(t, q.sent[0].Body, "Access you still hold")
	require.Equal(t, []string{"carol@example.com"}, q.sent[1].To)
	require.NotContains(t, q.sent[1].Body, "Access you still hold")
}

func TestNotifyOpsAndFailure(t *testing.T) {
	d, q := newDispatcher(t)
	require.NoError(t, d.NotifyOps(context.Background(), 11, errors.New("revoke failed")))
	require.Equal(t, []string{"ops@example.com"}, q.sent[0].To)
	require.Equal(t, []string{"team@example.com"}, q.sent[0].Cc)
	require.Contains(t, q.sent[0].Body, "revoke failed")

	require.NoError(t, d.NotifyAdminsOfFailure(context.Background(), sampleRequest(), errors.New("publish: down")))
	require.Equal(t, []string{"team@example.com"}, q.sent[1].To)
	require.Contains(t, q.sent[1].Body, "publish: down")
}

func TestSendSurfacesQueueErrors(t *testing.T) {
	d, q := newDispatcher(t)
	q.err = errors.New("redis down")
	err := d.NotifyRejected(context.Background(), sampleRequest())
	require.ErrorContains(t, err, "enqueue mail")

	q.err = nil
	req := sampleRequest()
	req.RequestorEmail = ""
	require.NoError(t, d.NotifyRejected(context.Background(), req))
	require.Empty(t, q.sent)
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("gk@example.com", jobs.SendEmailPayload{
		To: []string{"a@example.com", "b@example.com"}, Cc: []string{"c@example.com"}, Subject: "Hi", Body: "<p>x</p>\nend",
	}))
	require.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	require.Contains(t, msg, "Cc: c@example.com\r\n")
	require.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	require.True(t, strings.HasSuffix(msg, "<p>x</p>\r\nend"))
}
