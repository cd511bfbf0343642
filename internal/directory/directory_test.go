package directory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/auth"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
	"messenger-service/internal/store"
)

func newTestService(t *testing.T) (*Service, *repositories.UserRepo) {
	t.Helper()
	s, err := store.Open(context.Background(), store.NewFileBackend(filepath.Join(t.TempDir(), "data.json")))
	require.NoError(t, err)
	users := repositories.NewUserRepo(s)
	return NewService(users, auth.NewTokenManager("test-secret", time.Hour, "chat-service")), users
}

func userCount(t *testing.T, users *repositories.UserRepo) int {
	t.Helper()
	all, err := users.Search(context.Background(), "")
	require.NoError(t, err)
	return len(all)
}

func TestRegisterReturnsPublicProjection(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.Register(context.Background(), "alice", "pw123", "Alice A")
	require.NoError(t, err)

	assert.Equal(t, models.PublicUser{ID: "00001", Username: "@alice", DisplayName: "Alice A"}, user)
}

func TestRegisterDuplicateIsRejected(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService(t)

	_, err := svc.Register(ctx, "alice", "pw123", "Alice A")
	require.NoError(t, err)
	before := userCount(t, users)

	_, err = svc.Register(ctx, "alice", "other", "Another Alice")
	assert.ErrorIs(t, err, ErrDuplicateHandle)
	assert.Equal(t, before, userCount(t, users))
}

func TestRegisterNormalizesHandle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "bob", "pw", "Bob")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "@bob", "pw", "Bob Again")
	assert.ErrorIs(t, err, ErrDuplicateHandle)
}

func TestRegisterMissingField(t *testing.T) {
	svc, _ := newTestService(t)

	cases := [][3]string{
		{"", "pw", "Name"},
		{"alice", "", "Name"},
		{"alice", "pw", ""},
	}
	for _, tc := range cases {
		_, err := svc.Register(context.Background(), tc[0], tc[1], tc[2])
		assert.ErrorIs(t, err, ErrMissingField, "input %v", tc)
	}
}

func TestLoginExactMatch(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService(t)
	registered, err := svc.Register(ctx, "alice", "pw123", "Alice A")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	stored, err := users.GetUser(ctx, registered.ID)
	require.NoError(t, err)
	assert.False(t, stored.Online)

	user, token, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, registered, user)
	assert.NotEmpty(t, token)

	stored, err = users.GetUser(ctx, registered.ID)
	require.NoError(t, err)
	assert.True(t, stored.Online)
}

func TestLoginIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Register(ctx, "alice", "pw123", "Alice A")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "@alice", "PW123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "@alice", "pw123")
	assert.NoError(t, err)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Register(ctx, "alice", "pw123", "Alice A")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob", "pw", "Bob")
	require.NoError(t, err)

	results, err := svc.Search(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)

	results, err = svc.Search(ctx, "ALI")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SearchResult{ID: "00001", Username: "@alice", DisplayName: "Alice A", Online: false}, results[0])

	results, err = svc.Search(ctx, "@")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestAuthenticateResolvesUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Register(ctx, "alice", "pw123", "Alice A")
	require.NoError(t, err)
	_, token, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "00001", user.ID)
	assert.Equal(t, "pw123", user.Password)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateUnknownSubject(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour, "chat-service")
	users := new(mocks.UserRepositoryMock)
	svc := NewService(users, tokens)

	token, err := tokens.Issue("00077", "@ghost")
	require.NoError(t, err)
	users.On("GetUser", mock.Anything, "00077").Return(nil, repositories.ErrUserNotFound).Once()

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUserNotFound)
	users.AssertExpectations(t)
}

func TestLoginPropagatesStoreFailure(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := NewService(users, auth.NewTokenManager("test-secret", time.Hour, "chat-service"))

	users.On("FindByCredentials", mock.Anything, "@alice", "pw").Return(models.User{ID: "00001", Username: "@alice"}, nil).Once()
	users.On("SetOnline", mock.Anything, "00001", true).Return(errors.New("locked")).Once()

	_, _, err := svc.Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	users.AssertExpectations(t)
}

func TestRegisterAndLoginPublishEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.AnythingOfType("observability.EventEnvelope")).Return(nil)
	observability.SetPublisher(publisher)
	t.Cleanup(func() { observability.SetPublisher(nil) })

	_, err := svc.Register(ctx, "alice", "pw", "Alice")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "pw", "Alice")
	require.ErrorIs(t, err, ErrDuplicateHandle)
	_, _, err = svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	assert.Equal(t, []string{observability.RoutingUserRegistered, observability.RoutingUserLogin}, publisher.RoutingKeys())
}
