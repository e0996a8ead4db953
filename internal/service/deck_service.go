package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
)

// DeckInput carries the name for a new or renamed deck.
type DeckInput struct {
	Name string `validate:"required,max=15"`
}

// ExportableDeck is the JSON interchange shape for decks. Only the
// card text travels; review state starts fresh on import.
type ExportableDeck struct {
	Name  string           `json:"name"`
	Cards []ExportableCard `json:"cards"`
}

type ExportableCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DeckService wraps deck CRUD, name validation and JSON import/export.
type DeckService struct {
	deckRepo *repository.DeckRepository
	cardRepo *repository.CardRepository
	validate *validator.Validate
}

func NewDeckService(deckRepo *repository.DeckRepository, cardRepo *repository.CardRepository) *DeckService {
	return &DeckService{
		deckRepo: deckRepo,
		cardRepo: cardRepo,
		validate: validator.New(),
	}
}

func (s *DeckService) validateName(ctx context.Context, ownerID uint, input *DeckInput) error {
	input.Name = strings.TrimSpace(input.Name)

	if err := s.validate.Struct(input); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok || len(errs) == 0 {
			return err
		}
		switch errs[0].Tag() {
		case "required":
			return &ValidationError{Field: "name", Reason: "deck name cannot be blank"}
		case "max":
			return &ValidationError{Field: "name", Reason: "deck name cannot be more than 15 characters long"}
		default:
			return &ValidationError{Field: "name", Reason: "invalid deck name"}
		}
	}

	exists, err := s.deckRepo.ExistsByName(ctx, ownerID, input.Name)
	if err != nil {
		return err
	}
	if exists {
		return &ValidationError{Field: "name", Reason: "this deck already exists"}
	}
	return nil
}

func (s *DeckService) CreateDeck(ctx context.Context, user *model.User, input DeckInput) (*model.Deck, error) {
	if err := s.validateName(ctx, user.ID, &input); err != nil {
		return nil, err
	}

	deck := model.Deck{OwnerID: user.ID, Name: input.Name}
	if err := s.deckRepo.Create(ctx, &deck); err != nil {
		return nil, err
	}
	return &deck, nil
}

func (s *DeckService) RenameDeck(ctx context.Context, user *model.User, deckID uint, input DeckInput) (*model.Deck, error) {
	deck, err := s.deckRepo.GetByID(ctx, user.ID, deckID)
	if err != nil {
		return nil, err
	}

	if err := s.validateName(ctx, user.ID, &input); err != nil {
		return nil, err
	}

	if err := s.deckRepo.Rename(ctx, deck.ID, input.Name); err != nil {
		return nil, err
	}
	deck.Name = input.Name
	return deck, nil
}

func (s *DeckService) DeleteDeck(ctx context.Context, user *model.User, deckID uint) error {
	return s.deckRepo.Delete(ctx, user.ID, deckID)
}

func (s *DeckService) GetDeck(ctx context.Context, user *model.User, deckID uint) (*model.Deck, error) {
	return s.deckRepo.GetByID(ctx, user.ID, deckID)
}

func (s *DeckService) ListDecks(ctx context.Context, user *model.User) ([]model.Deck, error) {
	return s.deckRepo.ListByOwner(ctx, user.ID)
}

// ExportDecks serializes the chosen decks with their cards to pretty
// JSON. Only the card text travels; see ExportableDeck.
func (s *DeckService) ExportDecks(ctx context.Context, user *model.User, deckIDs []uint) ([]byte, error) {
	exportable := make([]ExportableDeck, 0, len(deckIDs))
	for _, id := range deckIDs {
		deck, err := s.deckRepo.GetWithCards(ctx, user.ID, id)
		if err != nil {
			return nil, err
		}
		out := ExportableDeck{Name: deck.Name, Cards: make([]ExportableCard, 0, len(deck.Cards))}
		for _, card := range deck.Cards {
			out.Cards = append(out.Cards, ExportableCard{Question: card.Question, Answer: card.Answer})
		}
		exportable = append(exportable, out)
	}

	data, err := json.MarshalIndent(exportable, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode decks: %w", err)
	}
	return data, nil
}

// ImportDecks creates the decks from a JSON export. Conflicting names
// get a " (n)" suffix so an import never clobbers an existing deck.
// Returns the number of decks created.
func (s *DeckService) ImportDecks(ctx context.Context, user *model.User, data []byte) (int, error) {
	var decks []ExportableDeck
	if err := json.Unmarshal(data, &decks); err != nil {
		return 0, &ValidationError{Field: "json", Reason: "not a valid deck export"}
	}

	existing, err := s.deckRepo.ListByOwner(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	taken := make(map[string]bool, len(existing))
	for _, deck := range existing {
		taken[strings.ToLower(deck.Name)] = true
	}

	created := 0
	for _, in := range decks {
		name := uniqueName(strings.TrimSpace(in.Name), taken)
		if name == "" {
			continue
		}
		taken[strings.ToLower(name)] = true

		deck := model.Deck{OwnerID: user.ID, Name: name}
		if err := s.deckRepo.Create(ctx, &deck); err != nil {
			return created, err
		}

		cards := make([]model.Card, 0, len(in.Cards))
		for _, c := range in.Cards {
			question := strings.TrimSpace(c.Question)
			answer := strings.TrimSpace(c.Answer)
			if question == "" || answer == "" {
				continue
			}
			cards = append(cards, model.NewCard(deck.ID, question, answer))
		}
		if err := s.cardRepo.InsertAll(ctx, cards); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func uniqueName(base string, taken map[string]bool) string {
	if base == "" {
		return ""
	}
	if !taken[strings.ToLower(base)] {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", base, i)
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}
