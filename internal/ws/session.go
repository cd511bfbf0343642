package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 * 1024
	sendQueue    = 256
)

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateIdentified
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateIdentified:
		return "identified"
	default:
		return "closed"
	}
}

// connInfo describes the transport side of a session.
type connInfo struct {
	ConnID string
	observability.RequestIdentity
	TraceID     string
	ConnectedAt time.Time
}

var ErrNotIdentified = errors.New("session has not announced an identity")

// Session is one live websocket connection and the identity bound to it.
type Session struct {
	conn *websocket.Conn
	info connInfo
	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	state sessionState
	user  *models.User

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, info connInfo) *Session {
	return &Session{
		conn:  conn,
		info:  info,
		send:  make(chan []byte, sendQueue),
		done:  make(chan struct{}),
		state: stateUnauthenticated,
	}
}

// User returns the bound identity, or ErrNotIdentified.
func (s *Session) User() (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdentified || s.user == nil {
		return models.User{}, ErrNotIdentified
	}
	return *s.user, nil
}

// bind moves the session to identified and returns the id of the user that
// was bound before, if any.
func (s *Session) bind(user models.User) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return "", false
	}
	previous := ""
	if s.user != nil {
		previous = s.user.ID
	}
	s.user = &user
	s.state = stateIdentified
	return previous, true
}

// markClosed moves the session to closed and returns the id of the bound
// user, if any.
func (s *Session) markClosed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// emit queues a frame for this session only.
func (s *Session) emit(event string, data any) {
	payload, err := json.Marshal(models.OutFrame{Event: event, Data: data})
	if err != nil {
		log.Printf("ws: encode %s for conn_id=%s: %v", event, s.info.ConnID, err)
		return
	}
	if !s.enqueue(payload) {
		log.Printf("ws: send queue full conn_id=%s, closing", s.info.ConnID)
		s.close()
	}
}

// enqueue reports false when the session is closed or its queue is full.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// close stops the write pump; the read loop then fails and unregisters.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Session) prepareRead() {
	s.conn.SetReadLimit(maxFrameSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("ws: set read deadline conn_id=%s: %v", s.info.ConnID, err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("ws: write error conn_id=%s: %v", s.info.ConnID, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
