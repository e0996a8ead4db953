package model

import "time"

// Card is a single question/answer pair together with its
// spaced-repetition state.
type Card struct {
	ID           uint    `gorm:"primaryKey"`
	DeckID       uint    `gorm:"index"`
	Question     string  `gorm:"not null"`
	Answer       string  `gorm:"not null"`
	LastReviewed int64   `gorm:"default:0"` // ms since epoch, 0 = never reviewed
	Interval     float64 `gorm:"default:1"` // hours until due again
	RepCount     int     `gorm:"default:0"` // consecutive successful reviews
	EaseFactor   float64 `gorm:"default:2.5"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCard returns an unsaved card with the default review state.
func NewCard(deckID uint, question, answer string) Card {
	return Card{
		DeckID:     deckID,
		Question:   question,
		Answer:     answer,
		Interval:   1.0,
		EaseFactor: 2.5,
	}
}

// DueAtMillis is the moment the card becomes due, in ms since epoch.
// A never-reviewed card (LastReviewed == 0) is due immediately.
func (c Card) DueAtMillis() int64 {
	return c.LastReviewed + int64(c.Interval*float64(time.Hour/time.Millisecond))
}
