package app

import "context"

// Routing keys for domain events.
const (
	EventResponseRecorded   = "response.recorded"
	EventQuizSubmitted      = "quiz.submitted"
	EventEntitlementGranted = "entitlement.granted"
)

// EventPublisher emits domain events to a broker. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
