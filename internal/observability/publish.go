package observability

import (
	"context"
	"sync"
)

// Publisher is satisfied by the rabbitmq publishers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	defaultPublisher = publisher
}

// PublishEvent sends an event envelope through the configured publisher.
// It is a no-op until SetPublisher is called.
func PublishEvent(ctx context.Context, routingKey string, eventName string, payload any) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	envelope := EventEnvelope{
		EventType: eventTypeFor(routingKey),
		EventName: eventName,
		Payload:   payload,
		Headers:   BuildHeaders(RequestIDFromContext(ctx), TraceIDFromContext(ctx)),
	}.stamped()
	err := publisher.Publish(ctx, routingKey, envelope)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
