package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/auth"
	"messenger-service/internal/directory"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/relay"
	"messenger-service/internal/repositories"
	"messenger-service/internal/rooms"
	"messenger-service/internal/store"
)

type testEnv struct {
	server    *httptest.Server
	store     *store.Store
	directory *directory.Service
	rooms     *rooms.Service
	hub       *Hub
	handler   *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.Open(context.Background(), store.NewFileBackend(filepath.Join(t.TempDir(), "data.json")))
	require.NoError(t, err)
	dir := directory.NewService(repositories.NewUserRepo(s), auth.NewTokenManager("test-secret", time.Hour, "chat-service"))
	roomSvc := rooms.NewService(repositories.NewChatRepo(s), repositories.NewMessageRepo(s))

	hub := NewHub(relay.NewLocal())
	require.NoError(t, hub.Start(context.Background()))

	h := NewHandler(hub, dir, roomSvc)
	return &testEnv{
		server:    startServer(t, h),
		store:     s,
		directory: dir,
		rooms:     roomSvc,
		hub:       hub,
		handler:   h,
	}
}

func startServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/ws", h.Handle)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

// login registers handle and returns its id and session token.
func (e *testEnv) login(t *testing.T, handle string) (string, string) {
	t.Helper()
	ctx := context.Background()
	user, err := e.directory.Register(ctx, handle, "pw", strings.ToUpper(handle))
	require.NoError(t, err)
	_, token, err := e.directory.Login(ctx, handle, "pw")
	require.NoError(t, err)
	return user.ID, token
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.OutFrame{Event: event, Data: data}))
}

type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) inFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame inFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func expect(t *testing.T, conn *websocket.Conn, event string, into any) {
	t.Helper()
	frame := read(t, conn)
	require.Equal(t, event, frame.Event, "data: %s", frame.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(frame.Data, into))
	}
}

func expectError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	var payload models.ErrorPayload
	expect(t, conn, models.EventError, &payload)
	assert.Equal(t, code, payload.Code, payload.Message)
}

func TestFanOutReachesEverySessionInRoom(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.login(t, "alice")
	bobID, bobToken := env.login(t, "bob")
	chat, err := env.rooms.CreateChat(context.Background(), "room", "group", aliceID, bobID)
	require.NoError(t, err)

	a := dial(t, env.server)
	b := dial(t, env.server)

	var chats []models.Chat
	send(t, a, models.EventUserLogin, models.LoginPayload{Token: aliceToken})
	expect(t, a, models.EventChatsList, &chats)
	require.Len(t, chats, 1)
	assert.Equal(t, chat.ID, chats[0].ID)
	send(t, b, models.EventUserLogin, models.LoginPayload{Token: bobToken})
	expect(t, b, models.EventChatsList, nil)

	var history []models.Message
	send(t, a, models.EventJoinChat, chat.ID)
	expect(t, a, models.EventMessageHistory, &history)
	assert.Empty(t, history)
	send(t, b, models.EventJoinChat, chat.ID)
	expect(t, b, models.EventMessageHistory, nil)

	send(t, a, models.EventSendMessage, models.SendMessagePayload{ChatID: chat.ID, Text: "hi"})

	for _, conn := range []*websocket.Conn{a, b} {
		var msg models.Message
		expect(t, conn, models.EventNewMessage, &msg)
		assert.Equal(t, chat.ID, msg.ChatID)
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, aliceID, msg.UserID)
	}

	log, _, err := env.rooms.History(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "hi", log[0].Text)
}

func TestJoinReplaysHistory(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.login(t, "alice")
	chat, err := env.rooms.CreateChat(context.Background(), "room", "group", aliceID)
	require.NoError(t, err)
	author, err := env.directory.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	_, err = env.rooms.Post(context.Background(), chat.ID, author, "earlier")
	require.NoError(t, err)

	conn := dial(t, env.server)
	send(t, conn, models.EventUserLogin, aliceToken)
	expect(t, conn, models.EventChatsList, nil)

	var history []models.Message
	send(t, conn, models.EventJoinChat, chat.ID)
	expect(t, conn, models.EventMessageHistory, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "earlier", history[0].Text)
}

func TestSendWhileUnidentifiedIsContained(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	conn := dial(t, env.server)

	send(t, conn, models.EventSendMessage, models.SendMessagePayload{ChatID: "00001", Text: "hi"})
	expectError(t, conn, "not_identified")

	send(t, conn, models.EventJoinChat, "00001")
	expectError(t, conn, "not_identified")

	// the connection survives the failed events
	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: token})
	expect(t, conn, models.EventChatsList, nil)
}

func TestUserLoginRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env.server)

	send(t, conn, models.EventUserLogin, map[string]string{"id": "00001", "username": "@alice"})
	expectError(t, conn, "invalid_token")

	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: "forged"})
	expectError(t, conn, "invalid_token")
}

func TestJoinRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.login(t, "alice")
	_, bobToken := env.login(t, "bob")
	chat, err := env.rooms.CreateChat(context.Background(), "private room", "group", aliceID)
	require.NoError(t, err)

	conn := dial(t, env.server)
	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: bobToken})
	expect(t, conn, models.EventChatsList, nil)

	send(t, conn, models.EventJoinChat, chat.ID)
	expectError(t, conn, "forbidden")
	assert.Equal(t, 0, env.hub.RoomSize(chat.ID))

	send(t, conn, models.EventSendMessage, models.SendMessagePayload{ChatID: chat.ID, Text: "let me in"})
	expectError(t, conn, "forbidden")

	send(t, conn, models.EventJoinChat, "00404")
	expectError(t, conn, "chat_not_found")

	log, _, err := env.rooms.History(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestUnknownAndMalformedEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env.server)

	send(t, conn, "typing", nil)
	expectError(t, conn, "bad_request")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	expectError(t, conn, "bad_request")
}

func TestDisconnectMarksOffline(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.login(t, "alice")

	conn := dial(t, env.server)
	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: token})
	expect(t, conn, models.EventChatsList, nil)

	user, err := env.directory.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	require.True(t, user.Online)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool {
		user, err := env.directory.GetUser(context.Background(), aliceID)
		return err == nil && !user.Online
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, env.hub.SessionCount())
}

func TestDisconnectKeepsOnlineWhileAnotherSessionLives(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.login(t, "alice")

	first := dial(t, env.server)
	second := dial(t, env.server)
	for _, conn := range []*websocket.Conn{first, second} {
		send(t, conn, models.EventUserLogin, models.LoginPayload{Token: token})
		expect(t, conn, models.EventChatsList, nil)
	}

	first.Close()
	require.Eventually(t, func() bool { return env.hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	user, err := env.directory.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	assert.True(t, user.Online)
}

func TestRebindReleasesPreviousUser(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.login(t, "alice")
	bobID, bobToken := env.login(t, "bob")

	conn := dial(t, env.server)
	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: aliceToken})
	expect(t, conn, models.EventChatsList, nil)
	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: bobToken})
	expect(t, conn, models.EventChatsList, nil)

	alice, err := env.directory.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	assert.False(t, alice.Online)
	bob, err := env.directory.GetUser(context.Background(), bobID)
	require.NoError(t, err)
	assert.True(t, bob.Online)

	conn.Close()
	require.Eventually(t, func() bool {
		bob, err := env.directory.GetUser(context.Background(), bobID)
		return err == nil && !bob.Online
	}, 2*time.Second, 10*time.Millisecond)
	alice, err = env.directory.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	assert.False(t, alice.Online)
}

func TestReconnectDuringDisconnectStaysOnline(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.login(t, "alice")

	first := dial(t, env.server)
	send(t, first, models.EventUserLogin, models.LoginPayload{Token: token})
	expect(t, first, models.EventChatsList, nil)

	// hold presence so the disconnect and the new login contend for it
	env.handler.presence.Lock()
	first.Close()
	second := dial(t, env.server)
	send(t, second, models.EventUserLogin, models.LoginPayload{Token: token})
	time.Sleep(50 * time.Millisecond)
	env.handler.presence.Unlock()

	expect(t, second, models.EventChatsList, nil)
	require.Eventually(t, func() bool { return env.hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	user, err := env.directory.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	assert.True(t, user.Online)
}

func TestPanicInHandlerIsContained(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := new(mocks.DirectoryMock)
	roomSvc := new(mocks.RoomsMock)
	hub := NewHub(relay.NewLocal())
	require.NoError(t, hub.Start(context.Background()))
	server := startServer(t, NewHandler(hub, dir, roomSvc))

	alice := models.User{ID: "00001", Username: "@alice"}
	dir.On("Authenticate", mock.Anything, "tok").Return(alice, nil)
	dir.On("SetOnline", mock.Anything, "00001", mock.Anything).Return(nil)
	roomSvc.On("ChatsFor", mock.Anything, "00001").Return([]models.Chat{}, nil)
	roomSvc.On("Authorize", mock.Anything, "00001", "00001").Return(models.Chat{ID: "00001"}, nil)
	roomSvc.On("Post", mock.Anything, "00001", alice, "boom").Run(func(args mock.Arguments) {
		panic("store exploded")
	}).Return(nil, nil)

	conn := dial(t, server)
	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: "tok"})
	expect(t, conn, models.EventChatsList, nil)

	send(t, conn, models.EventSendMessage, models.SendMessagePayload{ChatID: "00001", Text: "boom"})
	expectError(t, conn, "internal")

	send(t, conn, models.EventUserLogin, models.LoginPayload{Token: "tok"})
	expect(t, conn, models.EventChatsList, nil)
}

func TestDecodeChatID(t *testing.T) {
	id, err := decodeChatID(json.RawMessage(`"00003"`))
	require.NoError(t, err)
	assert.Equal(t, "00003", id)

	id, err = decodeChatID(json.RawMessage(`3`))
	require.NoError(t, err)
	assert.Equal(t, "00003", id)

	_, err = decodeChatID(json.RawMessage(`{}`))
	assert.ErrorIs(t, err, errBadPayload)
}
