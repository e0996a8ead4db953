package model

import "time"

// User identifies one Telegram account. Decks and study settings
// hang off the user so every chat gets its own collection.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Decks      []Deck `gorm:"foreignKey:OwnerID"`
}
