package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"messenger-service/internal/directory"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/rooms"
)

var (
	errBadPayload   = errors.New("malformed event payload")
	errUnknownEvent = errors.New("unknown event")
)

// dispatch runs one client event to completion. Failures, including panics,
// are reported to this session only and never end the connection.
func (h *Handler) dispatch(ctx context.Context, s *Session, raw []byte) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.fail(s, "", errBadPayload)
		return
	}

	ctx, span := otel.Tracer("chat-service/ws").Start(ctx, "ws."+frame.Event)
	span.SetAttributes(attribute.String("ws.conn_id", s.info.ConnID))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: panic handling %s conn_id=%s: %v\n%s", frame.Event, s.info.ConnID, r, debug.Stack())
			span.SetStatus(codes.Error, "panic")
			h.fail(s, frame.Event, fmt.Errorf("panic: %v", r))
		}
	}()

	var err error
	switch frame.Event {
	case models.EventUserLogin:
		err = h.identify(ctx, s, frame.Data)
	case models.EventJoinChat:
		err = h.joinChat(ctx, s, frame.Data)
	case models.EventSendMessage:
		err = h.sendMessage(ctx, s, frame.Data)
	default:
		err = errUnknownEvent
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errorCode(err))
		h.fail(s, frame.Event, err)
		return
	}
	observability.IncWSEvent(frame.Event, "ok")
}

func (h *Handler) fail(s *Session, event string, err error) {
	code := errorCode(err)
	label := event
	if label == "" {
		label = "invalid"
	}
	observability.IncWSEvent(label, code)
	if code == "internal" {
		log.Printf("ws: %s failed conn_id=%s: %v", label, s.info.ConnID, err)
	}
	s.emit(models.EventError, models.ErrorPayload{Code: code, Message: publicMessage(code, err), Event: event})
}

// identify binds the user behind the session token to s and replies with
// the user's chats.
func (h *Handler) identify(ctx context.Context, s *Session, data json.RawMessage) error {
	token, err := decodeToken(data)
	if err != nil {
		return err
	}
	user, err := h.directory.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	h.presence.Lock()
	previous, ok := s.bind(user)
	if !ok {
		h.presence.Unlock()
		return ErrNotIdentified
	}
	released := h.hub.Identify(s, previous, user.ID)
	if err := h.directory.SetOnline(ctx, user.ID, true); err != nil {
		log.Printf("ws: mark online user_id=%s: %v", user.ID, err)
	}
	if released {
		h.markOffline(ctx, previous)
	}
	h.presence.Unlock()

	chats, err := h.rooms.ChatsFor(ctx, user.ID)
	if err != nil {
		return err
	}
	log.Printf("ws: identified conn_id=%s user_id=%s chats=%d", s.info.ConnID, user.ID, len(chats))
	s.emit(models.EventChatsList, chats)
	return nil
}

// joinChat subscribes s to the chat's room and replays its history.
func (h *Handler) joinChat(ctx context.Context, s *Session, data json.RawMessage) error {
	user, err := s.User()
	if err != nil {
		return err
	}
	chatID, err := decodeChatID(data)
	if err != nil {
		return err
	}
	if _, err := h.rooms.Authorize(ctx, chatID, user.ID); err != nil {
		return err
	}

	h.hub.Join(chatID, s)
	history, ok, err := h.rooms.History(ctx, chatID)
	if err != nil {
		return err
	}
	if ok {
		s.emit(models.EventMessageHistory, history)
	}
	return nil
}

// sendMessage appends to the chat log and fans the message out to the room.
func (h *Handler) sendMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	user, err := s.User()
	if err != nil {
		return err
	}
	var payload models.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errBadPayload
	}
	if _, err := h.rooms.Authorize(ctx, payload.ChatID, user.ID); err != nil {
		return err
	}

	msg, err := h.rooms.Post(ctx, payload.ChatID, user, payload.Text)
	if err != nil {
		return err
	}
	return h.hub.Broadcast(ctx, payload.ChatID, models.EventNewMessage, msg)
}

// decodeToken accepts {"token": "..."} or a bare token string.
func decodeToken(data json.RawMessage) (string, error) {
	var payload models.LoginPayload
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload.Token, nil
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return "", errBadPayload
	}
	return token, nil
}

// decodeChatID accepts a string id or a bare number, which is zero-padded.
func decodeChatID(data json.RawMessage) (string, error) {
	var chatID string
	if err := json.Unmarshal(data, &chatID); err == nil && chatID != "" {
		return chatID, nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil && n > 0 {
		return fmt.Sprintf("%05d", n), nil
	}
	return "", errBadPayload
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, directory.ErrInvalidToken), errors.Is(err, directory.ErrUserNotFound):
		return "invalid_token"
	case errors.Is(err, ErrNotIdentified):
		return "not_identified"
	case errors.Is(err, rooms.ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, rooms.ErrForbidden):
		return "forbidden"
	case errors.Is(err, rooms.ErrMissingField):
		return "missing_field"
	case errors.Is(err, errBadPayload), errors.Is(err, errUnknownEvent):
		return "bad_request"
	default:
		return "internal"
	}
}

func publicMessage(code string, err error) string {
	if code == "internal" {
		return "internal error"
	}
	return err.Error()
}
