package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	RoutingUserRegistered = "user_events.registered"
	RoutingUserLogin      = "user_events.login"
	RoutingChatCreated    = "chat_events.created"
	RoutingMessageCreated = "chat_events.message_created"
	RoutingWSSessions     = "ws_events.sessions"
)

type EventEnvelope struct {
	EventType  string            `json:"event_type"`
	EventName  string            `json:"event_name"`
	OccurredAt string            `json:"occurred_at"`
	Payload    interface{}       `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
}

func (e EventEnvelope) stamped() EventEnvelope {
	if e.OccurredAt == "" {
		e.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return e
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

func eventTypeFor(routingKey string) string {
	if i := strings.IndexByte(routingKey, '.'); i > 0 {
		return routingKey[:i]
	}
	return routingKey
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx for event headers.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
