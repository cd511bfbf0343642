package repositories

import (
	"context"
	"time"

	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

// wallClockLayout is the display time stamped on each message.
const wallClockLayout = "15:04:05"

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID string, author models.User, text string) (models.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, bool, error)
}

// MessageRepo keeps per-chat message logs in the shared store.
type MessageRepo struct {
	store  *store.Store
	lastID int64 // guarded by the store write lock
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(s *store.Store) *MessageRepo {
	return &MessageRepo{store: s}
}

// CreateMessage stamps and appends a message to the chat's log, creating the
// log if it does not exist yet.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID string, author models.User, text string) (models.Message, error) {
	var msg models.Message
	err := r.store.Update(ctx, func(st *store.State) error {
		now := r.store.Now()
		log := st.Messages[chatID]
		msg = models.Message{
			ID:          r.nextID(now, log),
			Text:        text,
			ChatID:      chatID,
			UserID:      author.ID,
			Username:    author.Username,
			DisplayName: author.DisplayName,
			Time:        now.Format(wallClockLayout),
			Timestamp:   now.UnixMilli(),
		}
		st.Messages[chatID] = append(log, msg)
		return nil
	})
	return msg, err
}

// ListMessages returns a copy of the chat's log in append order. The bool is
// false when no log exists for chatID.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string) ([]models.Message, bool, error) {
	var (
		msgs []models.Message
		ok   bool
	)
	r.store.View(func(st *store.State) {
		var log []models.Message
		log, ok = st.Messages[chatID]
		if ok {
			msgs = append(make([]models.Message, 0, len(log)), log...)
		}
	})
	return msgs, ok, nil
}

// nextID derives the id from the millisecond clock, bumped past anything
// already issued so ids stay strictly increasing.
func (r *MessageRepo) nextID(now time.Time, log []models.Message) int64 {
	id := now.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	if n := len(log); n > 0 && id <= log[n-1].ID {
		id = log[n-1].ID + 1
	}
	r.lastID = id
	return id
}
