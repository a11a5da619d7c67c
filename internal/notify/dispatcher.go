// Package notify renders lifecycle mails and queues them for delivery.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gatekeeper/internal/access"
	"github.com/odyssey-erp/gatekeeper/internal/view"
	"github.com/odyssey-erp/gatekeeper/jobs"
)

// Enqueuer queues outbound mail.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Renderer renders a named mail template.
type Renderer interface {
	Render(name string, data view.TemplateData) (string, error)
}

// Config holds distribution addresses.
type Config struct {
	ApproverEmail string
	TeamEmail     string
	OpsEmail      string
}

// Dispatcher implements access.Notifier.
type Dispatcher struct {
	cfg      Config
	queue    Enqueuer
	renderer Renderer
	logger   *slog.Logger
}

// NewDispatcher constructs Dispatcher.
func NewDispatcher(cfg Config, queue Enqueuer, renderer Renderer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, queue: queue, renderer: renderer, logger: logger}
}

type mailData struct {
	Request   access.AccessRequest
	RequestID int64
	User      *access.UserAccess
	Users     []access.UserAccess
	Error     string
}

// NotifyRequested mails approvers about a pending request.
func (d *Dispatcher) NotifyRequested(ctx context.Context, req access.AccessRequest) error {
	subject := fmt.Sprintf("GATEKEEPER: Access Requested (%d)", req.ID)
	return d.send(ctx, recipients(d.cfg.ApproverEmail), nil, subject, "access_requested.html", mailData{Request: req})
}

// NotifyApproved mails the requestor, copying the granted users.
func (d *Dispatcher) NotifyApproved(ctx context.Context, req access.AccessRequest, event access.RequestEvent) error {
	subject := fmt.Sprintf("Gatekeeper: Access Request %d was granted", req.ID)
	cc := make([]string, 0, len(req.Users))
	for _, u := range req.Users {
		if u.Email != "" && !strings.EqualFold(u.Email, req.RequestorEmail) {
			cc = append(cc, u.Email)
		}
	}
	return d.send(ctx, recipients(req.RequestorEmail), cc, subject, "access_granted.html", mailData{Request: req, Users: event.Users})
}

// NotifyRejected mails the requestor.
func (d *Dispatcher) NotifyRejected(ctx context.Context, req access.AccessRequest) error {
	subject := fmt.Sprintf("Gatekeeper: Access Request %d was denied", req.ID)
	return d.send(ctx, recipients(req.RequestorEmail), nil, subject, "access_denied.html", mailData{Request: req})
}

// NotifyCanceled mails approvers, copying the requestor.
func (d *Dispatcher) NotifyCanceled(ctx context.Context, req access.AccessRequest) error {
	subject := fmt.Sprintf("Gatekeeper: Access Request %d was canceled", req.ID)
	return d.send(ctx, recipients(d.cfg.ApproverEmail), recipients(req.RequestorEmail), subject, "request_canceled.html", mailData{Request: req})
}

// NotifyExpired mails every user of req with their remaining and expired access.
func (d *Dispatcher) NotifyExpired(ctx context.Context, req access.AccessRequest, event access.RequestEvent) error {
	var errs []error
	for _, u := range req.Users {
		if u.Email == "" {
			continue
		}
		data := mailData{Request: req, User: viewFor(event, u)}
		if err := d.send(ctx, recipients(u.Email), nil, "Gatekeeper: Your Access has expired", "access_expired.html", data); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// NotifyAdminsOfFailure mails the team with the failure cause.
func (d *Dispatcher) NotifyAdminsOfFailure(ctx context.Context, req access.AccessRequest, cause error) error {
	return d.send(ctx, recipients(d.cfg.TeamEmail), nil, "Gatekeeper: Failure executing process", "failure.html", mailData{Request: req, Error: errText(cause)})
}

// NotifyOps asks ops to revoke access by hand.
func (d *Dispatcher) NotifyOps(ctx context.Context, requestID int64, cause error) error {
	data := mailData{RequestID: requestID, Error: errText(cause)}
	return d.send(ctx, recipients(d.cfg.OpsEmail), recipients(d.cfg.TeamEmail), "GATEKEEPER: Manual revoke access for expired request", "manual_removal.html", data)
}

func (d *Dispatcher) send(ctx context.Context, to, cc []string, subject, template string, data mailData) error {
	if len(to) == 0 {
		d.logger.Warn("mail skipped without recipients", slog.String("template", template), slog.String("subject", subject))
		return nil
	}
	body, err := d.renderer.Render(template, view.TemplateData{Title: subject, Data: data})
	if err != nil {
		return err
	}
	if _, err := d.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{To: to, Cc: cc, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	d.logger.Info("mail queued", slog.String("template", template), slog.Any("to", to))
	return nil
}

func viewFor(event access.RequestEvent, u access.User) *access.UserAccess {
	for i := range event.Users {
		ua := event.Users[i]
		if strings.EqualFold(ua.GKUserID, u.UserID) || strings.EqualFold(ua.UserID, u.UserID) {
			return &ua
		}
	}
	return &access.UserAccess{UserID: u.UserID, Email: u.Email}
}

func recipients(list string) []string {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
