package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/nokasa/pickup-backend/pkg/outbox/payloads"
)

type memoryClaims struct {
	claimed  map[string]bool
	released int
	err      error
}

func (m *memoryClaims) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.claimed == nil {
		m.claimed = map[string]bool{}
	}
	key := consumer + ":" + eventID
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memoryClaims) Release(ctx context.Context, consumer, eventID string) error {
	delete(m.claimed, consumer+":"+eventID)
	m.released++
	return nil
}

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) Send(ctx context.Context, phone, message string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, phone+"|"+message)
	return nil
}

type staticPhones map[int64]string

func (s staticPhones) FindEntityPhone(ctx context.Context, entityID int64) (string, error) {
	if phone, ok := s[entityID]; ok {
		return phone, nil
	}
	return "", errors.New("not found")
}

func newTestConsumer(claims *memoryClaims, sender *recordingSender) *Consumer {
	return &Consumer{
		phones:      staticPhones{7: "9800000007"},
		idempotency: claims,
		decoders:    NewDecoders(),
		sender:      sender,
		logg:        logger.Nop(),
	}
}

func envelopeFor(t *testing.T, payload payloads.NotificationRequestedEvent) (string, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	id := uuid.NewString()
	raw, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: id, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return id, raw
}

func attrs() map[string]string {
	return map[string]string{AttrEventType: string(enums.EventNotificationRequested)}
}

func TestConsumerDeliversSMSOnce(t *testing.T) {
	claims := &memoryClaims{}
	sender := &recordingSender{}
	c := newTestConsumer(claims, sender)
	_, data := envelopeFor(t, payloads.NotificationRequestedEvent{EntityID: 7, Message: "Your pickup OTP is 123456", DeliverSMS: true})

	if res := c.handle(context.Background(), "m1", attrs(), data); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if res := c.handle(context.Background(), "m2", attrs(), data); !res.ack {
		t.Fatalf("expected ack on redelivery, got %+v", res)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "9800000007|Your pickup OTP is 123456" {
		t.Fatalf("unexpected deliveries %v", sender.sent)
	}
}

func TestConsumerSkipsInAppOnlyAndOtherEvents(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConsumer(&memoryClaims{}, sender)
	_, data := envelopeFor(t, payloads.NotificationRequestedEvent{EntityID: 7, Message: "hi"})

	if res := c.handle(context.Background(), "m1", attrs(), data); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	other := map[string]string{AttrEventType: string(enums.EventOrderAccepted)}
	if res := c.handle(context.Background(), "m2", other, data); !res.ack {
		t.Fatalf("expected ack for foreign event, got %+v", res)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no sms, got %v", sender.sent)
	}
}

func TestConsumerReleasesClaimOnFailure(t *testing.T) {
	claims := &memoryClaims{}
	sender := &recordingSender{err: errors.New("gateway down")}
	c := newTestConsumer(claims, sender)
	_, data := envelopeFor(t, payloads.NotificationRequestedEvent{EntityID: 7, Message: "hi", DeliverSMS: true, Phone: "+919811111111"})

	if res := c.handle(context.Background(), "m1", attrs(), data); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
	if claims.released != 1 {
		t.Fatalf("expected claim released, got %d", claims.released)
	}

	sender.err = nil
	if res := c.handle(context.Background(), "m2", attrs(), data); !res.ack {
		t.Fatalf("expected ack on retry, got %+v", res)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "+919811111111|hi" {
		t.Fatalf("unexpected deliveries %v", sender.sent)
	}
}

func TestConsumerNacksWhenClaimStoreFails(t *testing.T) {
	c := newTestConsumer(&memoryClaims{err: errors.New("redis down")}, &recordingSender{})
	_, data := envelopeFor(t, payloads.NotificationRequestedEvent{EntityID: 7, DeliverSMS: true})
	if res := c.handle(context.Background(), "m1", attrs(), data); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
}

func TestConsumerAcksPoisonEnvelope(t *testing.T) {
	c := newTestConsumer(&memoryClaims{}, &recordingSender{})
	if res := c.handle(context.Background(), "m1", attrs(), []byte("{nope")); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
}

func TestNewConsumerValidatesDependencies(t *testing.T) {
	if _, err := NewConsumer(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
