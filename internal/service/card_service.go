package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
)

// Card text is bounded so that a card still fits on a single screen.
const maxCardTextLen = 200

// CardInput carries the question/answer pair for a new or edited card.
// Values are trimmed before validation; a blank or overlong field is
// rejected with a ValidationError and nothing is saved.
type CardInput struct {
	Question string `validate:"required,max=200"`
	Answer   string `validate:"required,max=200"`
}

// CardService wraps card CRUD with input validation.
type CardService struct {
	cardRepo *repository.CardRepository
	deckRepo *repository.DeckRepository
	validate *validator.Validate
}

func NewCardService(cardRepo *repository.CardRepository, deckRepo *repository.DeckRepository) *CardService {
	return &CardService{
		cardRepo: cardRepo,
		deckRepo: deckRepo,
		validate: validator.New(),
	}
}

func (s *CardService) validateInput(input *CardInput) error {
	input.Question = strings.TrimSpace(input.Question)
	input.Answer = strings.TrimSpace(input.Answer)

	if err := s.validate.Struct(input); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok || len(errs) == 0 {
			return err
		}
		return cardValidationError(errs[0])
	}
	return nil
}

func cardValidationError(fieldErr validator.FieldError) *ValidationError {
	field := strings.ToLower(fieldErr.Field())
	switch fieldErr.Tag() {
	case "required":
		return &ValidationError{Field: field, Reason: field + " cannot be blank"}
	case "max":
		return &ValidationError{Field: field, Reason: field + " cannot be longer than 200 characters"}
	default:
		return &ValidationError{Field: field, Reason: "invalid " + field}
	}
}

// AddCard validates the input and stores a new card with the default
// review state in the given deck.
func (s *CardService) AddCard(ctx context.Context, user *model.User, deckID uint, input CardInput) (*model.Card, error) {
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}

	// The deck must exist and belong to the caller.
	if _, err := s.deckRepo.GetByID(ctx, user.ID, deckID); err != nil {
		return nil, err
	}

	card := model.NewCard(deckID, input.Question, input.Answer)
	if err := s.cardRepo.Insert(ctx, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// EditCard replaces question and answer of an existing card, keeping
// its deck and review state.
func (s *CardService) EditCard(ctx context.Context, user *model.User, cardID uint, input CardInput) (*model.Card, error) {
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}

	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if _, err := s.deckRepo.GetByID(ctx, user.ID, card.DeckID); err != nil {
		return nil, err
	}

	if err := s.cardRepo.UpdateContent(ctx, card.ID, input.Question, input.Answer); err != nil {
		return nil, err
	}
	card.Question = input.Question
	card.Answer = input.Answer
	return card, nil
}

func (s *CardService) GetCard(ctx context.Context, cardID uint) (*model.Card, error) {
	return s.cardRepo.GetByID(ctx, cardID)
}

func (s *CardService) ListCards(ctx context.Context, user *model.User, deckID uint) ([]model.Card, error) {
	if _, err := s.deckRepo.GetByID(ctx, user.ID, deckID); err != nil {
		return nil, err
	}
	return s.cardRepo.ListByDeck(ctx, deckID)
}

// DeleteCards removes the given cards. IDs that no longer exist are
// ignored, matching the selection-and-delete flow where another
// screen may have removed a card first.
func (s *CardService) DeleteCards(ctx context.Context, ids []uint) error {
	return s.cardRepo.DeleteByIDs(ctx, ids)
}
