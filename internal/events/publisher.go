// Package events broadcasts access request events over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/gatekeeper/internal/access"
)

// TypeRequested marks a request awaiting approval.
const TypeRequested = "access.requested"

// Envelope is the published message body.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Request    Payload   `json:"request"`
}

// Payload summarises the request carried in an envelope.
type Payload struct {
	ID            int64     `json:"id"`
	RequestorID   string    `json:"requestor_id"`
	RequestorName string    `json:"requestor_name"`
	Account       string    `json:"account"`
	Region        string    `json:"region"`
	Hours         int       `json:"hours"`
	Reason        string    `json:"reason"`
	TicketID      string    `json:"ticket_id,omitempty"`
	ResourceIDs   []string  `json:"resource_ids"`
	UserIDs       []string  `json:"user_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publisher implements access.EventPublisher.
type Publisher struct {
	client  *redis.Client
	channel string
	now     func() time.Time
	newID   func() string
}

// NewPublisher constructs a Publisher on channel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Publish broadcasts req as an access.requested envelope.
func (p *Publisher) Publish(ctx context.Context, req access.AccessRequest) error {
	env := Envelope{
		ID:         p.newID(),
		Type:       TypeRequested,
		OccurredAt: p.now().UTC(),
		Request:    payloadFor(req),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func payloadFor(req access.AccessRequest) Payload {
	users := make([]string, 0, len(req.Users))
	for _, u := range req.Users {
		users = append(users, u.UserID)
	}
	return Payload{
		ID:            req.ID,
		RequestorID:   req.RequestorID,
		RequestorName: req.RequestorName,
		Account:       req.Account,
		Region:        req.Region,
		Hours:         req.Hours,
		Reason:        req.RequestReason,
		TicketID:      req.TicketID,
		ResourceIDs:   req.ResourceIDs(),
		UserIDs:       users,
		CreatedAt:     req.CreatedAt,
	}
}
