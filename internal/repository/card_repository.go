package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"flashcards-bot/internal/model"
)

// millisPerHour converts a card's interval (hours) into the millisecond
// offset used by the due query.
const millisPerHour = 60 * 60 * 1000

// CardRepository handles CRUD and session selection queries for cards.
type CardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) Insert(ctx context.Context, card *model.Card) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

func (r *CardRepository) InsertAll(ctx context.Context, cards []model.Card) error {
	if len(cards) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&cards).Error; err != nil {
		return fmt.Errorf("create cards: %w", err)
	}
	return nil
}

func (r *CardRepository) GetByID(ctx context.Context, id uint) (*model.Card, error) {
	var card model.Card
	if err := r.db.WithContext(ctx).First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "card", ID: id}
		}
		return nil, fmt.Errorf("find card: %w", err)
	}
	return &card, nil
}

// UpdateContent replaces question and answer, keeping id, deck and the
// review state untouched.
func (r *CardRepository) UpdateContent(ctx context.Context, id uint, question, answer string) error {
	res := r.db.WithContext(ctx).Model(&model.Card{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"question": question,
			"answer":   answer,
		})
	if res.Error != nil {
		return fmt.Errorf("update card: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "card", ID: id}
	}
	return nil
}

// UpdateReview persists a review outcome: only the scheduling fields
// change. A card that vanished meanwhile yields NotFoundError rather
// than silently resurrecting the row.
func (r *CardRepository) UpdateReview(ctx context.Context, card *model.Card) error {
	res := r.db.WithContext(ctx).Model(&model.Card{}).Where("id = ?", card.ID).
		Updates(map[string]interface{}{
			"last_reviewed": card.LastReviewed,
			"interval":      card.Interval,
			"rep_count":     card.RepCount,
			"ease_factor":   card.EaseFactor,
		})
	if res.Error != nil {
		return fmt.Errorf("update review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "card", ID: card.ID}
	}
	return nil
}

func (r *CardRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Delete(&model.Card{}, ids).Error; err != nil {
		return fmt.Errorf("delete cards: %w", err)
	}
	return nil
}

func (r *CardRepository) ListByDeck(ctx context.Context, deckID uint) ([]model.Card, error) {
	var cards []model.Card
	if err := r.db.WithContext(ctx).Where("deck_id = ?", deckID).
		Order("id ASC").
		Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

func (r *CardRepository) CountByDeck(ctx context.Context, deckID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Card{}).
		Where("deck_id = ?", deckID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return count, nil
}

// GetDueCards returns up to limit cards from the deck that are due at
// nowMillis, stalest first. A card with last_reviewed = 0 is due
// immediately; the boundary itself is inclusive. An empty result is a
// normal outcome, not an error.
func (r *CardRepository) GetDueCards(ctx context.Context, nowMillis int64, limit int, deckID uint) ([]model.Card, error) {
	var cards []model.Card
	if err := r.db.WithContext(ctx).
		Where("deck_id = ? AND ? >= last_reviewed + (interval * ?)", deckID, nowMillis, millisPerHour).
		Order("last_reviewed ASC").
		Limit(limit).
		Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("due cards: %w", err)
	}
	return cards, nil
}

// GetRandomCards returns up to limit cards from the deck, uniformly at
// random and irrespective of due status.
func (r *CardRepository) GetRandomCards(ctx context.Context, limit int, deckID uint) ([]model.Card, error) {
	var cards []model.Card
	if err := r.db.WithContext(ctx).
		Where("deck_id = ?", deckID).
		Order("RANDOM()").
		Limit(limit).
		Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("random cards: %w", err)
	}
	return cards, nil
}

// CountDueByDeck reports how many cards in the deck are due, used by
// the reminder summaries.
func (r *CardRepository) CountDueByDeck(ctx context.Context, nowMillis int64, deckID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Card{}).
		Where("deck_id = ? AND ? >= last_reviewed + (interval * ?)", deckID, nowMillis, millisPerHour).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count due cards: %w", err)
	}
	return count, nil
}
