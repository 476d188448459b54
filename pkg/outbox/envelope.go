package outbox

import (
	"encoding/json"
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
)

// ActorRef identifies the entity that caused the event.
type ActorRef struct {
	EntityID   int64            `json:"entityId"`
	EntityType enums.EntityType `json:"entityType"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
