package rooms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidKind  = errors.New("unknown chat type")
	ErrChatNotFound = errors.New("chat not found")
	ErrForbidden    = errors.New("not a member of this chat")
	ErrNotChannel   = errors.New("chat is not a channel")
)

// Service manages chats and their message logs.
type Service struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
}

// NewService constructs a Service.
func NewService(chats repositories.ChatRepository, messages repositories.MessageRepository) *Service {
	return &Service{chats: chats, messages: messages}
}

// CreateChat creates a chat whose only member (and, for channels, only
// subscriber) is the creator, plus any extra memberIDs. The creator is not
// checked against the directory.
func (s *Service) CreateChat(ctx context.Context, name, kind, creatorID string, memberIDs ...string) (models.Chat, error) {
	if strings.TrimSpace(name) == "" || creatorID == "" {
		return models.Chat{}, ErrMissingField
	}
	chatKind, ok := models.ParseChatKind(kind)
	if !ok {
		return models.Chat{}, ErrInvalidKind
	}

	chat, err := s.chats.CreateChat(ctx, name, chatKind, creatorID, memberIDs)
	if err != nil {
		return models.Chat{}, fmt.Errorf("create chat: %w", err)
	}

	log.Printf("rooms: created chat_id=%s type=%s creator_id=%s members=%d", chat.ID, chat.Type, chat.CreatorID, chat.MemberCount)
	_ = observability.PublishEvent(ctx, observability.RoutingChatCreated, "chat_created", chat)
	return chat, nil
}

// ChatsFor lists the chats userID belongs to or, for channels, follows.
func (s *Service) ChatsFor(ctx context.Context, userID string) ([]models.Chat, error) {
	return s.chats.ListChatsForUser(ctx, userID)
}

// Authorize returns the chat if userID may read and post in it.
func (s *Service) Authorize(ctx context.Context, chatID, userID string) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.Includes(userID) {
		return models.Chat{}, ErrForbidden
	}
	return chat, nil
}

// History returns the full ordered log of chatID. The bool is false when the
// chat has no log.
func (s *Service) History(ctx context.Context, chatID string) ([]models.Message, bool, error) {
	return s.messages.ListMessages(ctx, chatID)
}

// Post appends a message from author to chatID.
func (s *Service) Post(ctx context.Context, chatID string, author models.User, text string) (models.Message, error) {
	if chatID == "" || strings.TrimSpace(text) == "" {
		return models.Message{}, ErrMissingField
	}
	msg, err := s.messages.CreateMessage(ctx, chatID, author, text)
	if err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	observability.IncMessages()
	_ = observability.PublishEvent(ctx, observability.RoutingMessageCreated, "message_created", msg)
	return msg, nil
}

// Subscribe adds userID to a channel. Channels are open: knowing the id is
// enough to follow one.
func (s *Service) Subscribe(ctx context.Context, chatID, userID string) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.IsChannel() {
		return models.Chat{}, ErrNotChannel
	}
	chat, err = s.chats.AddSubscriber(ctx, chatID, userID)
	if err != nil {
		return models.Chat{}, fmt.Errorf("add subscriber: %w", err)
	}
	return chat, nil
}
