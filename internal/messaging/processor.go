package messaging

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/models"
	"example.com/procurement/services/rfq/internal/services"
)

// Event types carried on the award queue
const (
	SubmitAwards = "SubmitAwards"
	CancelAward  = "CancelAward"
)

// BusMessage is the common message envelope
type BusMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// CancelAwardCommand is the payload of a CancelAward event
type CancelAwardCommand struct {
	AwardID string `json:"award_id"`
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

// Processor routes award queue messages to the award service. Changes made
// from the queue are attributed to the system actor.
type Processor struct {
	awardService *services.AwardService
	metrics      *metrics.Metrics
}

func NewProcessor(awardService *services.AwardService, metricsCollector *metrics.Metrics) *Processor {
	return &Processor{
		awardService: awardService,
		metrics:      metricsCollector,
	}
}

func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var msg BusMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		return errors.Wrap(err, "error unmarshalling message")
	}

	log.Info().Str("eventType", msg.EventType).Msg("Processing message")

	var err error
	switch msg.EventType {
	case SubmitAwards:
		var payload models.AwardPayload
		if err = json.Unmarshal(msg.Data, &payload); err != nil {
			return err
		}
		_, err = p.awardService.SubmitAwards(ctx, audit.SystemActor(), &payload)

	case CancelAward:
		var cmd CancelAwardCommand
		if err = json.Unmarshal(msg.Data, &cmd); err != nil {
			return err
		}
		awardID, parseErr := uuid.Parse(cmd.AwardID)
		if parseErr != nil {
			return errors.Wrap(parseErr, "invalid award_id in message")
		}
		_, err = p.awardService.CancelAward(ctx, audit.SystemActor(), awardID)

	case services.RfqAwardStateChanged:
		// Our own outbound notification; nothing to do.
		return nil

	default:
		return errors.Errorf("unsupported event type: %s", msg.EventType)
	}

	if err == nil {
		p.metrics.IncrementCounter(metrics.MessagesProcessed)
	}
	return err
}
