package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Directory resolves session tokens and records presence.
type Directory interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Rooms is the chat access the session layer needs.
type Rooms interface {
	ChatsFor(ctx context.Context, userID string) ([]models.Chat, error)
	Authorize(ctx context.Context, chatID, userID string) (models.Chat, error)
	History(ctx context.Context, chatID string) ([]models.Message, bool, error)
	Post(ctx context.Context, chatID string, author models.User, text string) (models.Message, error)
}

// Handler upgrades HTTP requests into chat sessions.
type Handler struct {
	hub       *Hub
	directory Directory
	rooms     Rooms

	// presence serializes hub presence counts with the online flag writes
	// they decide, so a stale offline write cannot land after a newer login.
	presence sync.Mutex
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, directory Directory, rooms Rooms) *Handler {
	return &Handler{hub: hub, directory: directory, rooms: rooms}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts the session pumps. Identity is
// established later by a userLogin event.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	info := connInfo{
		ConnID:          uuid.NewString(),
		RequestIdentity: observability.IdentifyRequest(c.Request),
		TraceID:         span.SpanContext().TraceID().String(),
		ConnectedAt:     time.Now(),
	}
	s := newSession(conn, info)
	h.hub.Register(s)

	observability.IncWSActive()
	observability.IncWSEvent("connect", "ok")
	log.Printf("ws: connected conn_id=%s ip=%s", info.ConnID, info.IP)
	_ = observability.PublishEvent(ctx, observability.RoutingWSSessions, "ws_connect", sessionPayload(s, "", ""))

	go s.writePump()
	go h.readLoop(s)
}

func (h *Handler) readLoop(s *Session) {
	ctx := observability.WithRequestID(context.Background(), s.info.RequestID)
	var closeReason string
	defer func() {
		h.disconnect(ctx, s, closeReason)
	}()

	s.prepareRead()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("read", "error")
				log.Printf("ws: read error conn_id=%s: %v", s.info.ConnID, err)
			}
			return
		}
		h.dispatch(ctx, s, raw)
	}
}

// disconnect releases the session and marks its user offline when no other
// session of that user remains.
func (h *Handler) disconnect(ctx context.Context, s *Session, reason string) {
	userID := s.markClosed()
	s.close()

	h.presence.Lock()
	if h.hub.Unregister(s, userID) {
		h.markOffline(ctx, userID)
	}
	h.presence.Unlock()

	observability.DecWSActive()
	observability.IncWSEvent("disconnect", "ok")
	log.Printf("ws: disconnected conn_id=%s user_id=%s duration=%s", s.info.ConnID, userID, time.Since(s.info.ConnectedAt).Round(time.Millisecond))
	_ = observability.PublishEvent(ctx, observability.RoutingWSSessions, "ws_disconnect", sessionPayload(s, userID, reason))
}

func (h *Handler) markOffline(ctx context.Context, userID string) {
	if err := h.directory.SetOnline(ctx, userID, false); err != nil {
		log.Printf("ws: mark offline user_id=%s: %v", userID, err)
	}
}

func sessionPayload(s *Session, userID, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"conn_id":     s.info.ConnID,
			"duration_ms": time.Since(s.info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   userID,
			"device_id": s.info.DeviceID,
			"ip":        s.info.IP,
			"agent":     s.info.UserAgent,
		},
	}
}
