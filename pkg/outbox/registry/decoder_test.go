package registry

import (
	"encoding/json"
	"testing"

	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/nokasa/pickup-backend/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventNotificationRequested, 1, JSONDecoder[payloads.NotificationRequestedEvent]())

	input := json.RawMessage(`{"notificationId":7,"entityId":3,"type":"INFO","message":"hi","deliverSms":true}`)
	output, err := reg.Decode(enums.EventNotificationRequested, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, ok := output.(*payloads.NotificationRequestedEvent)
	if !ok {
		t.Fatalf("unexpected output %T", output)
	}
	if decoded.NotificationID != 7 || !decoded.DeliverSMS || decoded.Type != enums.NotificationTypeInfo {
		t.Fatalf("unexpected payload %+v", decoded)
	}

	if _, err := reg.Decode(enums.EventNotificationRequested, 2, input); err == nil {
		t.Fatalf("expected error for unregistered version")
	}
}
