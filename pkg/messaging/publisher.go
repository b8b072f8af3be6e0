package messaging

import (
	"context"
	"time"
)

// EventPublisher wraps every event in an Event envelope and sends it on
// prefix + "." + eventType.
type EventPublisher struct {
	broker Broker
	prefix string
	now    func() time.Time
}

func NewEventPublisher(broker Broker, prefix string) *EventPublisher {
	return &EventPublisher{broker: broker, prefix: prefix, now: time.Now}
}

func (p *EventPublisher) Channel(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *EventPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return p.broker.Publish(ctx, p.Channel(eventType), Event{
		Type:       eventType,
		Payload:    payload,
		OccurredAt: p.now().UTC(),
	})
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
