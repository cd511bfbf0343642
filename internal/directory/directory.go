// Package directory registers, authenticates and looks up users.
//
// Passwords are stored and compared verbatim. This is a known weakness of
// the data format and is kept deliberately so existing data files stay
// usable.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"messenger-service/internal/auth"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

var (
	ErrMissingField       = errors.New("missing required field")
	ErrDuplicateHandle    = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrUserNotFound       = errors.New("user not found")
)

// Service implements the user directory.
type Service struct {
	users  repositories.UserRepository
	tokens *auth.TokenManager
}

// NewService constructs a Service.
func NewService(users repositories.UserRepository, tokens *auth.TokenManager) *Service {
	return &Service{users: users, tokens: tokens}
}

// NormalizeHandle prefixes handle with the @ sentinel unless it has one.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, models.HandlePrefix) {
		return handle
	}
	return models.HandlePrefix + handle
}

// Register creates a new offline user.
func (s *Service) Register(ctx context.Context, handle, secret, displayName string) (models.PublicUser, error) {
	if strings.TrimSpace(handle) == "" || secret == "" || strings.TrimSpace(displayName) == "" {
		return models.PublicUser{}, ErrMissingField
	}
	user, err := s.users.Create(ctx, NormalizeHandle(handle), secret, displayName)
	if errors.Is(err, repositories.ErrDuplicateHandle) {
		return models.PublicUser{}, ErrDuplicateHandle
	}
	if err != nil {
		return models.PublicUser{}, fmt.Errorf("create user: %w", err)
	}

	log.Printf("directory: registered user_id=%s username=%s", user.ID, user.Username)
	_ = observability.PublishEvent(ctx, observability.RoutingUserRegistered, "user_registered", user.Public())
	return user.Public(), nil
}

// Login checks the credentials, marks the user online and issues a session
// token.
func (s *Service) Login(ctx context.Context, handle, secret string) (models.PublicUser, string, error) {
	if strings.TrimSpace(handle) == "" || secret == "" {
		return models.PublicUser{}, "", ErrMissingField
	}
	user, err := s.users.FindByCredentials(ctx, NormalizeHandle(handle), secret)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.PublicUser{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return models.PublicUser{}, "", fmt.Errorf("find user: %w", err)
	}

	if err := s.users.SetOnline(ctx, user.ID, true); err != nil {
		return models.PublicUser{}, "", fmt.Errorf("set online: %w", err)
	}
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return models.PublicUser{}, "", fmt.Errorf("issue token: %w", err)
	}

	_ = observability.PublishEvent(ctx, observability.RoutingUserLogin, "user_login", user.Public())
	return user.Public(), token, nil
}

// Search matches query against usernames and display names, ignoring case.
// A blank query matches nobody.
func (s *Service) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	results := []models.SearchResult{}
	if strings.TrimSpace(query) == "" {
		return results, nil
	}
	users, err := s.users.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	for _, u := range users {
		results = append(results, u.SearchView())
	}
	return results, nil
}

// Authenticate resolves the user a session token was issued to.
func (s *Service) Authenticate(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrInvalidToken
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return models.User{}, ErrInvalidToken
	}
	return s.GetUser(ctx, claims.Subject)
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SetOnline records presence for userID.
func (s *Service) SetOnline(ctx context.Context, userID string, online bool) error {
	err := s.users.SetOnline(ctx, userID, online)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}
