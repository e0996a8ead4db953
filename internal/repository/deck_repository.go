package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"flashcards-bot/internal/model"
)

// DeckRepository manages decks and their cascade to cards.
type DeckRepository struct {
	db *gorm.DB
}

func NewDeckRepository(db *gorm.DB) *DeckRepository {
	return &DeckRepository{db: db}
}

func (r *DeckRepository) Create(ctx context.Context, deck *model.Deck) error {
	if err := r.db.WithContext(ctx).Create(deck).Error; err != nil {
		return fmt.Errorf("create deck: %w", err)
	}
	return nil
}

func (r *DeckRepository) Rename(ctx context.Context, id uint, name string) error {
	res := r.db.WithContext(ctx).Model(&model.Deck{}).Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("rename deck: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "deck", ID: id}
	}
	return nil
}

// Delete removes the deck and all of its cards in one transaction.
func (r *DeckRepository) Delete(ctx context.Context, ownerID, deckID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("owner_id = ? AND id = ?", ownerID, deckID).Delete(&model.Deck{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "deck", ID: deckID}
		}
		return tx.Where("deck_id = ?", deckID).Delete(&model.Card{}).Error
	})
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return fmt.Errorf("delete deck: %w", err)
	}
	return nil
}

func (r *DeckRepository) GetByID(ctx context.Context, ownerID, deckID uint) (*model.Deck, error) {
	var deck model.Deck
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, deckID).
		First(&deck).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "deck", ID: deckID}
		}
		return nil, fmt.Errorf("find deck: %w", err)
	}
	return &deck, nil
}

func (r *DeckRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Deck, error) {
	var decks []model.Deck
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("name ASC").
		Find(&decks).Error; err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	return decks, nil
}

// ExistsByName reports whether the owner already has a deck with this
// name, compared case-insensitively.
func (r *DeckRepository) ExistsByName(ctx context.Context, ownerID uint, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Deck{}).
		Where("owner_id = ? AND LOWER(name) = LOWER(?)", ownerID, name).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count decks by name: %w", err)
	}
	return count > 0, nil
}

// GetWithCards loads the deck together with its cards, used by export.
func (r *DeckRepository) GetWithCards(ctx context.Context, ownerID, deckID uint) (*model.Deck, error) {
	var deck model.Deck
	if err := r.db.WithContext(ctx).Preload("Cards").
		Where("owner_id = ? AND id = ?", ownerID, deckID).
		First(&deck).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "deck", ID: deckID}
		}
		return nil, fmt.Errorf("find deck with cards: %w", err)
	}
	return &deck, nil
}
