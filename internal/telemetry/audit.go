package telemetry

import (
	"context"
	"log"
	"time"

	"messenger-service/internal/observability"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Record is one audit line as reported by a handler.
type Record struct {
	Level     string
	Text      string
	RequestID string
	UserID    *string
}

// AuditEmitter ships audit records to the audit routing key.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes rec. A nil emitter or publisher drops it; publish failures
// are logged and never reach the caller.
func (e *AuditEmitter) Emit(ctx context.Context, rec Record) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = LevelInfo
	}
	if rec.RequestID == "" {
		rec.RequestID = observability.RequestIDFromContext(ctx)
	}

	envelope := e.envelope(ctx, rec)
	log.Printf("audit: level=%s request_id=%s user_id=%s text=%q", rec.Level, rec.RequestID, userLabel(rec.UserID), rec.Text)
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit: publish to %s failed: %v", e.routingKey, err)
	}
}

func (e *AuditEmitter) envelope(ctx context.Context, rec Record) AuditEnvelope {
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		TraceID:       observability.TraceIDFromContext(ctx),
		UserID:        rec.UserID,
		Payload:       AuditPayload{Level: rec.Level, Text: rec.Text},
	}
}

func userLabel(userID *string) string {
	if userID == nil {
		return "-"
	}
	return *userID
}
