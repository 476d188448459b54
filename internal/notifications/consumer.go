package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/nokasa/pickup-backend/pkg/outbox/payloads"
	"github.com/nokasa/pickup-backend/pkg/outbox/registry"
	"github.com/nokasa/pickup-backend/pkg/sms"
)

const smsDeliveryConsumer = "notification-sms"

// Message attribute keys set by the outbox publisher.
const (
	AttrEventType     = "event_type"
	AttrEventID       = "event_id"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
)

type phoneLookup interface {
	FindEntityPhone(ctx context.Context, entityID int64) (string, error)
}

type claimer interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Consumer delivers notification events flagged for SMS.
type Consumer struct {
	phones       phoneLookup
	subscription *pubsub.Subscriber
	idempotency  claimer
	decoders     *registry.DecoderRegistry
	sender       sms.Sender
	logg         *logger.Logger
}

// NewDecoders registers the payload decoders the consumer understands.
func NewDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventNotificationRequested, 1, registry.JSONDecoder[payloads.NotificationRequestedEvent]())
	return decoders
}

// NewConsumer builds the notification consumer.
func NewConsumer(phones phoneLookup, subscription *pubsub.Subscriber, manager claimer, sender sms.Sender, logg *logger.Logger) (*Consumer, error) {
	if phones == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sms sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		phones:       phones,
		subscription: subscription,
		idempotency:  manager,
		decoders:     NewDecoders(),
		sender:       sender,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.handle(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) handle(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attrs[AttrEventType])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != enums.EventNotificationRequested {
		c.logg.Debug(logCtx, "skipping non-notification event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.Version == 0 {
		envelope.Version = 1
	}

	claimed, err := c.idempotency.Claim(ctx, smsDeliveryConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Release(ctx, smsDeliveryConsumer, envelope.EventID)
		return processResult{nack: true}
	}
	payload, ok := decoded.(*payloads.NotificationRequestedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("%T", decoded))
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"notification_id": payload.NotificationID,
		"entity_id":       payload.EntityID,
	})
	if !payload.DeliverSMS {
		c.logg.Debug(logCtx, "notification is in-app only")
		return processResult{ack: true}
	}

	if err := c.deliver(ctx, payload); err != nil {
		c.logg.Error(logCtx, "sms delivery failed", err)
		_ = c.idempotency.Release(ctx, smsDeliveryConsumer, envelope.EventID)
		return processResult{nack: true}
	}
	c.logg.Info(logCtx, "notification delivered by sms")
	return processResult{ack: true}
}

func (c *Consumer) deliver(ctx context.Context, payload *payloads.NotificationRequestedEvent) error {
	phone := strings.TrimSpace(payload.Phone)
	if phone == "" {
		found, err := c.phones.FindEntityPhone(ctx, payload.EntityID)
		if err != nil {
			return fmt.Errorf("lookup phone for entity %d: %w", payload.EntityID, err)
		}
		phone = found
	}
	return c.sender.Send(ctx, phone, payload.Message)
}
