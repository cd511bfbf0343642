package repositories

import (
	"context"
	"errors"

	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, name string, kind models.ChatKind, creatorID string, memberIDs []string) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	AddSubscriber(ctx context.Context, chatID string, userID string) (models.Chat, error)
}

// ChatRepo keeps chats in the shared store.
type ChatRepo struct {
	store *store.Store
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(s *store.Store) *ChatRepo {
	return &ChatRepo{store: s}
}

// CreateChat appends a chat and its empty message log in one update.
func (r *ChatRepo) CreateChat(ctx context.Context, name string, kind models.ChatKind, creatorID string, memberIDs []string) (models.Chat, error) {
	// creator first, then the rest deduped in request order
	members := []string{creatorID}
	seen := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	var chat models.Chat
	err := r.store.Update(ctx, func(st *store.State) error {
		chat = models.Chat{
			ID:          st.NextChatID(),
			Name:        name,
			Type:        kind,
			CreatorID:   creatorID,
			Members:     members,
			MemberCount: len(members),
			Created:     r.store.Now().UTC(),
		}
		if kind == models.KindBroadcast {
			chat.Subscribers = []string{creatorID}
			chat.SubscriberCount = 1
		}
		st.Chats = append(st.Chats, chat)
		st.Messages[chat.ID] = []models.Message{}
		return nil
	})
	if err != nil {
		return models.Chat{}, err
	}
	return cloneChat(chat), nil
}

// GetChat fetches a single chat.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var (
		chat  models.Chat
		found bool
	)
	r.store.View(func(st *store.State) {
		for _, c := range st.Chats {
			if c.ID == chatID {
				chat, found = cloneChat(c), true
				return
			}
		}
	})
	if !found {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, nil
}

// ListChatsForUser returns chats the user is a member of, or subscribed to
// for channels, in creation order.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	chats := []models.Chat{}
	r.store.View(func(st *store.State) {
		for _, c := range st.Chats {
			if c.Includes(userID) {
				chats = append(chats, cloneChat(c))
			}
		}
	})
	return chats, nil
}

// AddSubscriber adds userID to a channel's subscribers. Adding an existing
// subscriber is a no-op.
func (r *ChatRepo) AddSubscriber(ctx context.Context, chatID string, userID string) (models.Chat, error) {
	var chat models.Chat
	err := r.store.Update(ctx, func(st *store.State) error {
		for i := range st.Chats {
			c := &st.Chats[i]
			if c.ID != chatID {
				continue
			}
			if c.IsChannel() && !c.HasSubscriber(userID) {
				c.Subscribers = append(c.Subscribers, userID)
				c.SubscriberCount = len(c.Subscribers)
			}
			chat = cloneChat(*c)
			return nil
		}
		return ErrChatNotFound
	})
	return chat, err
}

func cloneChat(c models.Chat) models.Chat {
	c.Members = append([]string(nil), c.Members...)
	if c.Subscribers != nil {
		c.Subscribers = append([]string(nil), c.Subscribers...)
	}
	return c
}
