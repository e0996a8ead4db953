package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
)

// testEnv bundles an in-memory store with one registered user, the
// minimum needed to exercise the services end to end.
type testEnv struct {
	db           *gorm.DB
	userRepo     *repository.UserRepository
	deckRepo     *repository.DeckRepository
	cardRepo     *repository.CardRepository
	settingsRepo *repository.SettingsRepository
	user         *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	userRepo := repository.NewUserRepository(db)
	user, err := userRepo.UpsertFromTelegram(context.Background(), 100, "Test", "User", "tester")
	require.NoError(t, err)

	return &testEnv{
		db:           db,
		userRepo:     userRepo,
		deckRepo:     repository.NewDeckRepository(db),
		cardRepo:     repository.NewCardRepository(db),
		settingsRepo: repository.NewSettingsRepository(db),
		user:         user,
	}
}

func (e *testEnv) deckService() *DeckService {
	return NewDeckService(e.deckRepo, e.cardRepo)
}

func (e *testEnv) cardService() *CardService {
	return NewCardService(e.cardRepo, e.deckRepo)
}

func (e *testEnv) studyService() *StudyService {
	return NewStudyService(e.cardRepo, e.deckRepo, e.settingsRepo)
}

func (e *testEnv) settingsService() *SettingsService {
	return NewSettingsService(e.settingsRepo)
}

func (e *testEnv) reminderService() *ReminderService {
	return NewReminderService(e.deckRepo, e.cardRepo, e.settingsRepo)
}

func (e *testEnv) mustDeck(t *testing.T, name string) *model.Deck {
	t.Helper()
	deck, err := e.deckService().CreateDeck(context.Background(), e.user, DeckInput{Name: name})
	require.NoError(t, err)
	return deck
}

func (e *testEnv) mustCard(t *testing.T, deckID uint, question, answer string) *model.Card {
	t.Helper()
	card, err := e.cardService().AddCard(context.Background(), e.user, deckID, CardInput{Question: question, Answer: answer})
	require.NoError(t, err)
	return card
}
