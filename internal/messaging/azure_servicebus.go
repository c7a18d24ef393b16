package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"example.com/procurement/services/rfq/config"
)

// ServiceBusClient is an interface for Azure Service Bus operations
type ServiceBusClient interface {
	SendMessage(ctx context.Context, eventType string, body interface{}) error
	Close() error
}

// serviceBusClient implements the ServiceBusClient interface
type serviceBusClient struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
}

// NewServiceBusClient creates a new Azure Service Bus client and a sender
// for the configured queue
func NewServiceBusClient(cfg config.AzureConfig, source string) (ServiceBusClient, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
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
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
		source:    source,
	}, nil
}

// SendMessage sends an event envelope to the Service Bus queue
func (s *serviceBusClient) SendMessage(ctx context.Context, eventType string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}
	envelope, err := json.Marshal(BusMessage{EventType: eventType, Data: data})
	if err != nil {
		return errors.Wrap(err, "failed to marshal message envelope")
	}

	msg := &azservicebus.Message{
		Body: envelope,
		ApplicationProperties: map[string]interface{}{
			"source": s.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return s.sender.SendMessage(ctx, msg, nil)
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
