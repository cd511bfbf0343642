package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/middleware"
	"messenger-service/internal/models"
)

// Rooms is the chat service as the HTTP layer sees it.
type Rooms interface {
	CreateChat(ctx context.Context, name, kind, creatorID string, memberIDs ...string) (models.Chat, error)
	ChatsFor(ctx context.Context, userID string) ([]models.Chat, error)
	Authorize(ctx context.Context, chatID, userID string) (models.Chat, error)
	History(ctx context.Context, chatID string) ([]models.Message, bool, error)
	Subscribe(ctx context.Context, chatID, userID string) (models.Chat, error)
}

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	rooms Rooms
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(rooms Rooms) *ChatHandler {
	return &ChatHandler{rooms: rooms}
}

// CreateChat creates a chat owned by the caller.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Name      string   `json:"name"`
		Type      string   `json:"type"`
		CreatorID string   `json:"creatorId"`
		MemberIDs []string `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errBadRequest)
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	if req.CreatorID != "" && req.CreatorID != userID {
		respondError(c, errUnauthorized)
		return
	}

	chat, err := h.rooms.CreateChat(c.Request.Context(), req.Name, req.Type, userID, req.MemberIDs...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chat": chat})
}

// ListChats returns the chats visible to the caller.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.rooms.ChatsFor(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chats": chats})
}

// GetMessages returns the message log of a chat the caller may read.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID := c.Param("chat_id")
	if _, err := h.rooms.Authorize(c.Request.Context(), chatID, c.GetString(middleware.UserIDKey)); err != nil {
		respondError(c, err)
		return
	}

	msgs, _, err := h.rooms.History(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

// Subscribe adds the caller to a channel's subscribers.
func (h *ChatHandler) Subscribe(c *gin.Context) {
	chat, err := h.rooms.Subscribe(c.Request.Context(), c.Param("chat_id"), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chat": chat})
}
