package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"messenger-service/internal/models"
)

// IDWidth is the zero-padded width of user and chat ids.
const IDWidth = 5

// ErrParse is returned when a persisted document exists but cannot be decoded.
var ErrParse = errors.New("malformed state document")

// State is the whole persisted document.
type State struct {
	Users       []models.User               `json:"users"`
	Chats       []models.Chat               `json:"chats"`
	Messages    map[string][]models.Message `json:"messages"`
	UserCounter int                         `json:"userCounter"`
	ChatCounter int                         `json:"chatCounter"`
}

// NewState returns an empty document with both counters at 1.
func NewState() *State {
	return &State{
		Users:       []models.User{},
		Chats:       []models.Chat{},
		Messages:    map[string][]models.Message{},
		UserCounter: 1,
		ChatCounter: 1,
	}
}

// NextUserID allocates the next user id.
func (s *State) NextUserID() string {
	id := FormatID(s.UserCounter)
	s.UserCounter++
	return id
}

// NextChatID allocates the next chat id.
func (s *State) NextChatID() string {
	id := FormatID(s.ChatCounter)
	s.ChatCounter++
	return id
}

// FormatID zero-pads n to IDWidth.
func FormatID(n int) string {
	return fmt.Sprintf("%0*d", IDWidth, n)
}

// Decode parses a persisted document. Missing collections are initialized.
func Decode(data []byte) (*State, error) {
	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if state.Users == nil {
		state.Users = []models.User{}
	}
	if state.Chats == nil {
		state.Chats = []models.Chat{}
	}
	if state.Messages == nil {
		state.Messages = map[string][]models.Message{}
	}
	if state.UserCounter < 1 {
		state.UserCounter = 1
	}
	if state.ChatCounter < 1 {
		state.ChatCounter = 1
	}
	return state, nil
}

// Encode serializes the document the way it is written to disk.
func Encode(s *State) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
