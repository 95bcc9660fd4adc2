package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// EnvelopeSource names this service on every published message.
const EnvelopeSource = "stockmon"

// ActorRef identifies the user whose request produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
}

// PayloadEnvelope wraps each outbox payload. Consumers dedupe on EventID and
// route on EventType; Subject is the aggregate the event is about.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType,omitempty"`
	Source     string                `json:"source,omitempty"`
	Subject    string                `json:"subject,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *ActorRef             `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

var errEmptyEnvelopeData = errors.New("envelope carries no data")

// Decode unmarshals Data into v, rejecting an absent or null payload.
func (e PayloadEnvelope) Decode(v any) error {
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errEmptyEnvelopeData
	}
	return json.Unmarshal(trimmed, v)
}
