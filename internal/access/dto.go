package access

import (
	"time"

	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

type submitPayload struct {
	Account       string            `json:"account" validate:"required"`
	Region        string            `json:"region" validate:"required"`
	Hours         int               `json:"hours" validate:"required,min=1"`
	Platform      string            `json:"platform" validate:"required"`
	RequestReason string            `json:"request_reason" validate:"required"`
	TicketID      string            `json:"ticket_id"`
	Resources     []resourcePayload `json:"resources" validate:"required,min=1,dive"`
	Users         []userPayload     `json:"users" validate:"required,min=1,dive"`
}

type resourcePayload struct {
	ResourceID  string `json:"resource_id" validate:"required"`
	Name        string `json:"name"`
	IP          string `json:"ip" validate:"omitempty,ip"`
	Application string `json:"application"`
	Platform    string `json:"platform" validate:"required"`
}

type userPayload struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name"`
	Email  string `json:"email" validate:"omitempty,email"`
}

type approvePayload struct {
	Comments string `json:"comments" validate:"max=2000"`
	Hours    int    `json:"hours" validate:"required,min=1"`
}

type rejectPayload struct {
	Comments string `json:"comments" validate:"max=2000"`
}

func (p submitPayload) toInput(idempotencyKey string) SubmitInput {
	in := SubmitInput{
		Account:        p.Account,
		Region:         p.Region,
		Hours:          p.Hours,
		Platform:       p.Platform,
		RequestReason:  p.RequestReason,
		TicketID:       p.TicketID,
		IdempotencyKey: idempotencyKey,
	}
	for _, r := range p.Resources {
		in.Resources = append(in.Resources, ResourceInput{
			ResourceID:  r.ResourceID,
			Name:        r.Name,
			IP:          r.IP,
			Application: r.Application,
			Platform:    r.Platform,
		})
	}
	for _, u := range p.Users {
		in.Users = append(in.Users, UserInput{UserID: u.UserID, Name: u.Name, Email: u.Email})
	}
	return in
}

type resourceResponse struct {
	ResourceID  string `json:"resource_id"`
	Name        string `json:"name"`
	IP          string `json:"ip"`
	Application string `json:"application"`
	Platform    string `json:"platform"`
	Status      string `json:"status,omitempty"`
}

type userResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type requestResponse struct {
	ID                 int64              `json:"id"`
	Account            string             `json:"account"`
	Region             string             `json:"region"`
	RequestorID        string             `json:"requestor_id"`
	RequestorName      string             `json:"requestor_name"`
	RequestorEmail     string             `json:"requestor_email"`
	Hours              int                `json:"hours"`
	RequestReason      string             `json:"request_reason"`
	TicketID           string             `json:"ticket_id"`
	Platform           string             `json:"platform"`
	Status             string             `json:"status"`
	ApproverComments   string             `json:"approver_comments,omitempty"`
	ActionedByUserID   string             `json:"actioned_by_user_id,omitempty"`
	ActionedByUserName string             `json:"actioned_by_user_name,omitempty"`
	AuthorizationStart *time.Time         `json:"authorization_start,omitempty"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	ResourceCount      int                `json:"resource_count"`
	UserCount          int                `json:"user_count"`
	Resources          []resourceResponse `json:"resources,omitempty"`
	Users              []userResponse     `json:"users,omitempty"`
}

type listResponse struct {
	Requests []requestResponse `json:"requests"`
	Count    int               `json:"count"`
}

func toResponse(req AccessRequest, withAssociations bool) requestResponse {
	resp := requestResponse{
		ID:                 req.ID,
		Account:            req.Account,
		Region:             req.Region,
		RequestorID:        req.RequestorID,
		RequestorName:      req.RequestorName,
		RequestorEmail:     req.RequestorEmail,
		Hours:              req.Hours,
		RequestReason:      req.RequestReason,
		TicketID:           req.TicketID,
		Platform:           string(req.Platform),
		Status:             string(req.Status),
		ApproverComments:   req.ApproverComments,
		ActionedByUserID:   req.ActionedByUserID,
		ActionedByUserName: req.ActionedByUserName,
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
		ResourceCount:      len(req.Resources),
		UserCount:          len(req.Users),
	}
	if !req.AuthorizationStart.IsZero() {
		start := req.AuthorizationStart
		end := req.ExpiresAt()
		resp.AuthorizationStart = &start
		resp.ExpiresAt = &end
	}
	if withAssociations {
		for _, r := range req.Resources {
			resp.Resources = append(resp.Resources, resourceResponse{
				ResourceID:  r.ResourceID,
				Name:        r.Name,
				IP:          r.IP,
				Application: r.Application,
				Platform:    string(r.Platform),
				Status:      r.Status,
			})
		}
		for _, u := range req.Users {
			resp.Users = append(resp.Users, userResponse{UserID: u.UserID, Name: u.Name, Email: u.Email})
		}
	}
	return resp
}

func toListResponse(items []RequestSummary, withResources bool) listResponse {
	out := listResponse{Requests: make([]requestResponse, 0, len(items)), Count: len(items)}
	for _, item := range items {
		resp := toResponse(item.AccessRequest, false)
		resp.ResourceCount = item.ResourceCount
		resp.UserCount = item.UserCount
		if withResources {
			for _, r := range item.Resources {
				resp.Resources = append(resp.Resources, resourceResponse{
					ResourceID:  r.ResourceID,
					Name:        r.Name,
					IP:          r.IP,
					Application: r.Application,
					Platform:    string(r.Platform),
					Status:      r.Status,
				})
			}
		}
		out.Requests = append(out.Requests, resp)
	}
	return out
}

type historyEntry struct {
	ActorID string    `json:"actor_id"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

type historyResponse struct {
	RequestID int64          `json:"request_id"`
	Entries   []historyEntry `json:"entries"`
}

func toHistoryResponse(id int64, logs []shared.ApprovalLog) historyResponse {
	out := historyResponse{RequestID: id, Entries: make([]historyEntry, 0, len(logs))}
	for _, l := range logs {
		out.Entries = append(out.Entries, historyEntry{ActorID: l.ActorID, Action: string(l.Action), Note: l.Note, At: l.At})
	}
	return out
}
