package models

// Message represents a chat message.
type Message struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	ChatID      string `json:"chatId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Time        string `json:"time"`
	Timestamp   int64  `json:"timestamp"`
}
