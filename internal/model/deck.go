package model

import "time"

// Deck is a named collection of cards owned by one user.
// Names are unique per owner when compared case-insensitively;
// the repository enforces that with a LOWER(name) check.
type Deck struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerID   uint   `gorm:"index"`
	Name      string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Cards     []Card `gorm:"foreignKey:DeckID"`
}
