package models

import (
	"strings"
	"time"
)

// ChatKind selects the membership model of a chat.
type ChatKind string

const (
	KindDirect    ChatKind = "private"
	KindGroup     ChatKind = "group"
	KindBroadcast ChatKind = "channel"
)

// ParseChatKind accepts the stored values and the direct/broadcast aliases.
func ParseChatKind(s string) (ChatKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "private", "direct":
		return KindDirect, true
	case "group":
		return KindGroup, true
	case "channel", "broadcast":
		return KindBroadcast, true
	}
	return "", false
}

// Chat is a conversation record. Subscribers are only kept for channels.
type Chat struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            ChatKind  `json:"type"`
	CreatorID       string    `json:"creatorId"`
	Members         []string  `json:"members"`
	Created         time.Time `json:"created"`
	MemberCount     int       `json:"memberCount"`
	Subscribers     []string  `json:"subscribers,omitempty"`
	SubscriberCount int       `json:"subscriberCount,omitempty"`
}

// IsChannel reports whether c uses the subscriber model.
func (c Chat) IsChannel() bool {
	return c.Type == KindBroadcast
}

// HasMember reports whether userID is in the member set.
func (c Chat) HasMember(userID string) bool {
	return contains(c.Members, userID)
}

// HasSubscriber reports whether userID subscribed to a channel.
func (c Chat) HasSubscriber(userID string) bool {
	return c.IsChannel() && contains(c.Subscribers, userID)
}

// Includes reports whether userID may see the chat.
func (c Chat) Includes(userID string) bool {
	return c.HasMember(userID) || c.HasSubscriber(userID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
