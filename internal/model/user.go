package model

import "time"

// Profile публичная карточка пользователя, по ней другие находят владельца
type Profile struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Name           string    `json:"name"`
	TelegramChatID *int64    `json:"telegram_chat_id"` // указатель - может быть nil
	CreatedAt      time.Time `json:"created_at"`
}
