package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Notification templates
const (
	TemplateVolunteerConfirm = "volunteer_response_confirm"
	TemplateSupplyConfirm    = "supply_response_confirm"
	TemplateEventClosed      = "event_closed"
	TemplateEventApproved    = "event_approved"
	TemplateVolunteerRemind  = "volunteer_reminder"
	TemplateNewEventsDigest  = "new_events_digest"
)

// AudienceNewsletter addresses every subscribed user
const AudienceNewsletter = "newsletter"

// Notification is the queue payload consumed by the mail sender
type Notification struct {
	ID        string                 `json:"id"`
	Template  string                 `json:"template"`
	Recipient string                 `json:"recipient,omitempty"`
	Audience  string                 `json:"audience,omitempty"`
	From      string                 `json:"from"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// Notifier dispatches fire-and-forget notifications
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, template string, payload map[string]interface{}) error
	Broadcast(ctx context.Context, audience, template string, payload map[string]interface{}) error
}

// QueueNotifier publishes notifications onto a Service Bus queue
type QueueNotifier struct {
	client ServiceBusClient
	from   string
}

// NewQueueNotifier creates a notifier over the given client
func NewQueueNotifier(client ServiceBusClient, from string) *QueueNotifier {
	return &QueueNotifier{client: client, from: from}
}

// Notify sends one template to one user
func (n *QueueNotifier) Notify(ctx context.Context, recipientID uuid.UUID, template string, payload map[string]interface{}) error {
	return n.send(ctx, Notification{
		Template:  template,
		Recipient: recipientID.String(),
		Payload:   payload,
	})
}

// Broadcast sends one template to an audience
func (n *QueueNotifier) Broadcast(ctx context.Context, audience, template string, payload map[string]interface{}) error {
	return n.send(ctx, Notification{
		Template: template,
		Audience: audience,
		Payload:  payload,
	})
}

func (n *QueueNotifier) send(ctx context.Context, notification Notification) error {
	notification.ID = uuid.NewString()
	notification.From = n.from
	notification.CreatedAt = time.Now().UTC()

	err := n.client.SendMessage(ctx, Message{
		ID:      notification.ID,
		Subject: notification.Template,
		Body:    notification,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to send %s notification", notification.Template)
	}
	return nil
}
