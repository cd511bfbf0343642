package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"messenger-service/internal/observability"
	"messenger-service/internal/telemetry"
)

// Publisher publishes domain and audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the topic exchange. When amqpURL is empty or the
// broker cannot be reached it returns a publisher that only logs.
func NewPublisher(amqpURL, exchange, appID string) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url")
	}
	p, err := dial(amqpURL, exchange, appID)
	if err != nil {
		return newNoop(err.Error())
	}
	log.Printf("rabbitmq: connected exchange=%s", exchange)
	return p
}

func dial(amqpURL, exchange, appID string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange, not auto-deleted
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, appID: appID}, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	appID    string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	headers, requestID := headersFor(event)
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: requestID,
		AppId:         p.appID,
		Timestamp:     time.Now(),
		Headers:       headers,
		Body:          body,
	})
	if err != nil {
		log.Printf("rabbitmq: publish routing_key=%s failed: %v", routingKey, err)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// headersFor copies tracing headers out of the known envelope types and
// returns the request id for correlation.
func headersFor(event any) (amqp.Table, string) {
	table := amqp.Table{}
	var requestID string
	switch envelope := event.(type) {
	case observability.EventEnvelope:
		for key, value := range envelope.Headers {
			table[key] = value
		}
		requestID = envelope.Headers["x-request-id"]
	case telemetry.AuditEnvelope:
		requestID = envelope.RequestID
		if requestID != "" {
			table["x-request-id"] = requestID
		}
		if envelope.TraceID != "" {
			table["trace_id"] = envelope.TraceID
		}
	}
	return table, requestID
}

type noopPublisher struct {
	reason string
}

func newNoop(reason string) noopPublisher {
	log.Printf("rabbitmq: disabled, using noop: %s", reason)
	return noopPublisher{reason: reason}
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		log.Printf("rabbitmq: noop routing_key=%s event_type=%s request_id=%s", routingKey, envelope.EventType, envelope.RequestID)
	case observability.EventEnvelope:
		log.Printf("rabbitmq: noop routing_key=%s event_type=%s event_name=%s", routingKey, envelope.EventType, envelope.EventName)
	default:
		log.Printf("rabbitmq: noop routing_key=%s", routingKey)
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Describe reports how p delivers events, for the startup log.
func Describe(p Publisher) string {
	switch publisher := p.(type) {
	case *amqpPublisher:
		return "amqp exchange=" + publisher.exchange
	case noopPublisher:
		return "noop reason=" + publisher.reason
	default:
		return "unknown"
	}
}
