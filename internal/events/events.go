package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StreamChannel carries every channel lifecycle event.
const StreamChannel = "events:channel"

// Event types
const (
	EventChannelCreated      = "channel_created"
	EventCollateralLocked    = "collateral_locked"
	EventPaymentApplied      = "payment_applied"
	EventCollateralWithdrawn = "collateral_withdrawn"
	EventInvariantViolation  = "invariant_violation"
)

// Event is the wire form on every stream. ID lets webhook receivers drop
// duplicates produced by notify-bridge retries.
type Event struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

func New(eventType string, payload map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

// ChannelID returns payload["channel_id"] or "".
func (e Event) ChannelID() string {
	id, _ := e.Payload["channel_id"].(string)
	return id
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
