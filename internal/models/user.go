package models

import "time"

// HandlePrefix is carried by every stored username.
const HandlePrefix = "@"

// User is a registered account as persisted in the state document.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	Registered  time.Time `json:"registered"`
}

// PublicUser is the projection returned by register and login.
type PublicUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// SearchResult is the projection returned by user search.
type SearchResult struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

// Public strips the secret and presence from u.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

// SearchView strips the secret from u.
func (u User) SearchView() SearchResult {
	return SearchResult{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, Online: u.Online}
}
