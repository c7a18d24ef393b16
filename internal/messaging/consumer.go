package messaging

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/config"
)

// Consumer receives award events from the Service Bus queue and feeds them
// to a processor
type Consumer struct {
	client    *azservicebus.Client
	queueName string
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg config.AzureConfig) (*Consumer, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	return &Consumer{client: client, queueName: cfg.QueueName}, nil
}

// Run receives and processes messages until the context is cancelled.
// Failed messages are abandoned so the queue redelivers them.
func (c *Consumer) Run(ctx context.Context, processor MessageProcessor) error {
	receiver, err := c.client.NewReceiverForQueue(c.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error closing Service Bus receiver")
		}
	}()

	log.Info().Str("queue", c.queueName).Msg("Starting award event consumer")

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "error receiving messages")
		}

		for _, message := range messages {
			if err := processor.ProcessMessage(ctx, message); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Error processing message")
				if err := receiver.AbandonMessage(context.Background(), message, nil); err != nil {
					log.Error().Err(err).Msg("Failed to abandon message")
				}
				continue
			}

			if err := receiver.CompleteMessage(context.Background(), message, nil); err != nil {
				log.Error().Err(err).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the underlying Service Bus client
func (c *Consumer) Close() error {
	if c.client != nil {
		return c.client.Close(context.Background())
	}
	return nil
}
