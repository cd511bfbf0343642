package models

import "encoding/json"

// Client to server events.
const (
	EventUserLogin   = "userLogin"
	EventJoinChat    = "joinChat"
	EventSendMessage = "sendMessage"
)

// Server to client events.
const (
	EventChatsList      = "chatsList"
	EventMessageHistory = "messageHistory"
	EventNewMessage     = "newMessage"
	EventError          = "error"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutFrame is the server-side form of Frame.
type OutFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// LoginPayload identifies a session. Extra user fields sent by older
// clients are ignored; only the token is trusted.
type LoginPayload struct {
	Token string `json:"token"`
	ID    string `json:"id,omitempty"`
}

// SendMessagePayload is the data of a sendMessage event.
type SendMessagePayload struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// ErrorPayload is reported to a client when one of its events fails.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
