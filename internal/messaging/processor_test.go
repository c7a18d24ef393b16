package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/require"

	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/services"
)

func envelope(t *testing.T, eventType string, data interface{}) *azservicebus.ReceivedMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(BusMessage{EventType: eventType, Data: raw})
	require.NoError(t, err)
	return &azservicebus.ReceivedMessage{Body: body}
}

func TestProcessMessageRejectsUnsupportedEvent(t *testing.T) {
	p := NewProcessor(nil, metrics.NewMetrics())

	err := p.ProcessMessage(context.Background(), envelope(t, "SomethingElse", map[string]string{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported event type")
}

func TestProcessMessageIgnoresOwnNotifications(t *testing.T) {
	p := NewProcessor(nil, metrics.NewMetrics())

	err := p.ProcessMessage(context.Background(), envelope(t, services.RfqAwardStateChanged, map[string]string{}))
	require.NoError(t, err)
}

func TestProcessMessageRejectsMalformedBody(t *testing.T) {
	p := NewProcessor(nil, metrics.NewMetrics())

	err := p.ProcessMessage(context.Background(), &azservicebus.ReceivedMessage{Body: []byte("not json")})
	require.Error(t, err)
}

func TestProcessMessageRejectsBadAwardID(t *testing.T) {
	p := NewProcessor(nil, metrics.NewMetrics())

	err := p.ProcessMessage(context.Background(), envelope(t, CancelAward, CancelAwardCommand{AwardID: "nope"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid award_id")
}
