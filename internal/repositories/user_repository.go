package repositories

import (
	"context"
	"errors"
	"strings"

	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateHandle = errors.New("username already taken")
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	Create(ctx context.Context, username, password, displayName string) (models.User, error)
	FindByCredentials(ctx context.Context, username, password string) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
	Search(ctx context.Context, query string) ([]models.User, error)
}

// UserRepo keeps users in the shared store.
type UserRepo struct {
	store *store.Store
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(s *store.Store) *UserRepo {
	return &UserRepo{store: s}
}

// Create allocates the next id and appends the user. The username must
// already be normalized.
func (r *UserRepo) Create(ctx context.Context, username, password, displayName string) (models.User, error) {
	var user models.User
	err := r.store.Update(ctx, func(st *store.State) error {
		for _, u := range st.Users {
			if u.Username == username {
				return ErrDuplicateHandle
			}
		}
		user = models.User{
			ID:          st.NextUserID(),
			Username:    username,
			Password:    password,
			DisplayName: displayName,
			Online:      false,
			Registered:  r.store.Now().UTC(),
		}
		st.Users = append(st.Users, user)
		return nil
	})
	return user, err
}

// FindByCredentials returns the user whose username and password both match
// exactly.
func (r *UserRepo) FindByCredentials(ctx context.Context, username, password string) (models.User, error) {
	var (
		user  models.User
		found bool
	)
	r.store.View(func(st *store.State) {
		for _, u := range st.Users {
			if u.Username == username && u.Password == password {
				user, found = u, true
				return
			}
		}
	})
	if !found {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var (
		user  models.User
		found bool
	)
	r.store.View(func(st *store.State) {
		for _, u := range st.Users {
			if u.ID == userID {
				user, found = u, true
				return
			}
		}
	})
	if !found {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

// SetOnline updates the presence flag.
func (r *UserRepo) SetOnline(ctx context.Context, userID string, online bool) error {
	return r.store.Update(ctx, func(st *store.State) error {
		for i := range st.Users {
			if st.Users[i].ID == userID {
				st.Users[i].Online = online
				return nil
			}
		}
		return ErrUserNotFound
	})
}

// Search returns users whose username or display name contains query,
// ignoring case, in registration order.
func (r *UserRepo) Search(ctx context.Context, query string) ([]models.User, error) {
	needle := strings.ToLower(query)
	users := []models.User{}
	r.store.View(func(st *store.State) {
		for _, u := range st.Users {
			if strings.Contains(strings.ToLower(u.Username), needle) || strings.Contains(strings.ToLower(u.DisplayName), needle) {
				users = append(users, u)
			}
		}
	})
	return users, nil
}
