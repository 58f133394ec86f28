// Package realtime publishes thread and notification deltas to connected
// listeners. Delivery is best effort and at most once; clients reconcile
// through the regular query endpoints after reconnecting.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventNewNotification EventType = "new_notification"
	EventThreadUpdated   EventType = "thread_updated"
)

// Event is the envelope written to subscribers.
type Event struct {
	Type    EventType       `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEvent marshals payload into an event of type t.
func NewEvent(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", t, err)
	}
	return Event{Type: t, Data: data, SentAt: time.Now().UTC()}, nil
}

type Broker interface {
	Publish(ctx context.Context, channel string, evt Event) error
	// Subscribe listens on channels until the subscription is closed or ctx
	// is done.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

type Subscription interface {
	// Events is closed once the subscription ends.
	Events() <-chan Event
	Close() error
}

func UserChannel(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

func ThreadChannel(threadID uuid.UUID) string {
	return "thread:" + threadID.String()
}

// subscriberBuffer bounds how far a listener may lag before events are
// dropped for it.
const subscriberBuffer = 64
