package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"messenger-service/internal/models"
	"messenger-service/internal/relay"
)

// Hub maintains live sessions, their room subscriptions and per-user
// presence counts.
type Hub struct {
	sessions map[*Session]bool
	rooms    map[string]map[*Session]bool
	online   map[string]int
	relay    relay.Relay
	mu       sync.RWMutex
}

// NewHub creates an empty hub publishing through r.
func NewHub(r relay.Relay) *Hub {
	return &Hub{
		sessions: make(map[*Session]bool),
		rooms:    make(map[string]map[*Session]bool),
		online:   make(map[string]int),
		relay:    r,
	}
}

// Start subscribes the hub to its relay.
func (h *Hub) Start(ctx context.Context) error {
	return h.relay.Subscribe(ctx, h.deliver)
}

// Register tracks a newly connected session.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

// Identify counts s as a live session of userID. If s was bound to another
// user before, that user's count is released; the result reports whether
// previous has no live session left.
func (h *Hub) Identify(s *Session, previous, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online[userID]++
	if previous == "" {
		return false
	}
	return h.releaseLocked(previous) && previous != userID
}

// Join subscribes s to room.
func (h *Hub) Join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Session]bool)
	}
	h.rooms[room][s] = true
}

// Unregister removes s from every room. It reports whether s was the last
// live session of userID.
func (h *Hub) Unregister(s *Session, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sessions[s] {
		return false
	}
	delete(h.sessions, s)
	for room, members := range h.rooms {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if userID == "" {
		return false
	}
	return h.releaseLocked(userID)
}

func (h *Hub) releaseLocked(userID string) bool {
	n := h.online[userID] - 1
	if n <= 0 {
		delete(h.online, userID)
		return true
	}
	h.online[userID] = n
	return false
}

// Broadcast sends event to every session subscribed to room, on every
// instance sharing the relay.
func (h *Hub) Broadcast(ctx context.Context, room, event string, data any) error {
	payload, err := json.Marshal(models.OutFrame{Event: event, Data: data})
	if err != nil {
		return err
	}
	return h.relay.Publish(ctx, room, payload)
}

func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(payload) {
			log.Printf("ws: dropping slow session conn_id=%s room=%s", s.info.ConnID, room)
			s.close()
		}
	}
}

// RoomSize returns the number of sessions subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
