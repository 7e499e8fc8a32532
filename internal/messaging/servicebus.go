package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"example.com/backstage/services/charity/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Message is an outgoing queue message
type Message struct {
	ID      string
	Subject string
	Body    interface{}
}

// ServiceBusClient is an interface for Azure Service Bus operations
type ServiceBusClient interface {
	SendMessage(ctx context.Context, msg Message) error
	Close() error
}

// serviceBusClient implements the ServiceBusClient interface
type serviceBusClient struct {
	client     *azservicebus.Client
	sender     *azservicebus.Sender
	queueName  string
	clientType string
	maxRetries int
}

// logServiceBusClient only logs messages, for local development
type logServiceBusClient struct {
	clientType string
}

// NewServiceBusClient creates a new Azure Service Bus client. Without a
// connection string it returns a client that logs instead of sending.
func NewServiceBusClient(cfg config.AzureConfig, clientType string) (ServiceBusClient, error) {
	if cfg.QueueConnStr == "" {
		log.Warn().Str("client", clientType).Msg("Service Bus connection string not set, notifications will only be logged")
		return &logServiceBusClient{clientType: clientType}, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &serviceBusClient{
		client:     client,
		sender:     sender,
		queueName:  cfg.QueueName,
		clientType: clientType,
		maxRetries: 3,
	}, nil
}

// SendMessage sends a message to the Service Bus queue
func (s *serviceBusClient) SendMessage(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	sbMsg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": s.clientType,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if msg.ID != "" {
		sbMsg.MessageID = &msg.ID
	}
	if msg.Subject != "" {
		sbMsg.Subject = &msg.Subject
	}

	return RetryWithBackoff(ctx, func() error {
		return s.sender.SendMessage(ctx, sbMsg, nil)
	}, s.maxRetries)
}

// Close closes the Service Bus client
func (s *serviceBusClient) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(context.Background())
	}
	return nil
}

func (m *logServiceBusClient) SendMessage(ctx context.Context, msg Message) error {
	log.Info().
		Str("client", m.clientType).
		Str("message_id", msg.ID).
		Str("subject", msg.Subject).
		Interface("body", msg.Body).
		Msg("Service Bus message (not sent)")
	return nil
}

func (m *logServiceBusClient) Close() error {
	return nil
}

// IsDisconnectionError reports whether a send failed because the link dropped
func IsDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeConnectionLost {
		return true
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "amqp: link detached") ||
		strings.Contains(errMsg, "awaiting send: context deadline exceeded")
}

// RetryWithBackoff retries an operation with exponential backoff while the
// failure is a disconnection.
func RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var err error

	for retry := 0; retry < maxRetries; retry++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsDisconnectionError(err) {
			return err
		}

		backoff := time.Duration(1<<uint(retry)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-time.After(backoff):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
