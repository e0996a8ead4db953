package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"flashcards-bot/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := NewDB(":memory:")
	require.NoError(t, err)

	// One connection keeps all queries on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func seedDeck(t *testing.T, db *gorm.DB, ownerID uint, name string) *model.Deck {
	t.Helper()
	deck := model.Deck{OwnerID: ownerID, Name: name}
	require.NoError(t, NewDeckRepository(db).Create(context.Background(), &deck))
	return &deck
}

func TestCardRepositoryGetDueCards(t *testing.T) {
	db := newTestDB(t)
	repo := NewCardRepository(db)
	ctx := context.Background()
	deck := seedDeck(t, db, 1, "Go")

	now := time.Now().UnixMilli()

	fresh := model.NewCard(deck.ID, "q1", "a1") // never reviewed
	require.NoError(t, repo.Insert(ctx, &fresh))

	overdue := model.NewCard(deck.ID, "q2", "a2")
	overdue.LastReviewed = now - 13*millisPerHour
	overdue.Interval = 12
	require.NoError(t, repo.Insert(ctx, &overdue))

	exactly := model.NewCard(deck.ID, "q3", "a3")
	exactly.LastReviewed = now - 12*millisPerHour
	exactly.Interval = 12
	require.NoError(t, repo.Insert(ctx, &exactly))

	notYet := model.NewCard(deck.ID, "q4", "a4")
	notYet.LastReviewed = now - 1*millisPerHour
	notYet.Interval = 12
	require.NoError(t, repo.Insert(ctx, &notYet))

	cards, err := repo.GetDueCards(ctx, now, 10, deck.ID)
	require.NoError(t, err)
	require.Len(t, cards, 3, "boundary must be inclusive and last_reviewed=0 due immediately")

	// Stalest first: the never-reviewed card sorts before the rest.
	assert.Equal(t, fresh.ID, cards[0].ID)
	assert.Equal(t, overdue.ID, cards[1].ID)
	assert.Equal(t, exactly.ID, cards[2].ID)
}

func TestCardRepositoryGetDueCardsLimitAndScope(t *testing.T) {
	db := newTestDB(t)
	repo := NewCardRepository(db)
	ctx := context.Background()
	deck := seedDeck(t, db, 1, "Go")
	other := seedDeck(t, db, 1, "SQL")

	for i := 0; i < 5; i++ {
		card := model.NewCard(deck.ID, "q", "a")
		require.NoError(t, repo.Insert(ctx, &card))
	}
	stray := model.NewCard(other.ID, "q", "a")
	require.NoError(t, repo.Insert(ctx, &stray))

	now := time.Now().UnixMilli()

	cards, err := repo.GetDueCards(ctx, now, 3, deck.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 3)
	for _, c := range cards {
		assert.Equal(t, deck.ID, c.DeckID)
	}

	count, err := repo.CountDueByDeck(ctx, now, deck.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestCardRepositoryGetRandomCards(t *testing.T) {
	db := newTestDB(t)
	repo := NewCardRepository(db)
	ctx := context.Background()
	deck := seedDeck(t, db, 1, "Go")

	for i := 0; i < 4; i++ {
		card := model.NewCard(deck.ID, "q", "a")
		// Not due for a long time: random selection must not care.
		card.LastReviewed = time.Now().UnixMilli()
		card.Interval = 1000
		require.NoError(t, repo.Insert(ctx, &card))
	}

	cards, err := repo.GetRandomCards(ctx, 10, deck.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 4)

	cards, err = repo.GetRandomCards(ctx, 2, deck.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestCardRepositoryUpdateReview(t *testing.T) {
	db := newTestDB(t)
	repo := NewCardRepository(db)
	ctx := context.Background()
	deck := seedDeck(t, db, 1, "Go")

	card := model.NewCard(deck.ID, "q", "a")
	require.NoError(t, repo.Insert(ctx, &card))

	card.LastReviewed = time.Now().UnixMilli()
	card.Interval = 24
	card.RepCount = 2
	card.EaseFactor = 2.6
	require.NoError(t, repo.UpdateReview(ctx, &card))

	got, err := repo.GetByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.LastReviewed, got.LastReviewed)
	assert.Equal(t, 24.0, got.Interval)
	assert.Equal(t, 2, got.RepCount)
	assert.InDelta(t, 2.6, got.EaseFactor, 1e-9)
	assert.Equal(t, "q", got.Question, "review update must not touch the text")
}

func TestCardRepositoryUpdateReviewDeletedCard(t *testing.T) {
	db := newTestDB(t)
	repo := NewCardRepository(db)
	ctx := context.Background()
	deck := seedDeck(t, db, 1, "Go")

	card := model.NewCard(deck.ID, "q", "a")
	require.NoError(t, repo.Insert(ctx, &card))
	require.NoError(t, repo.DeleteByIDs(ctx, []uint{card.ID}))

	err := repo.UpdateReview(ctx, &card)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	// The failed update must not resurrect the row.
	count, err := repo.CountByDeck(ctx, deck.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestCardRepositoryUpdateContent(t *testing.T) {
	db := newTestDB(t)
	repo := NewCardRepository(db)
	ctx := context.Background()
	deck := seedDeck(t, db, 1, "Go")

	card := model.NewCard(deck.ID, "old q", "old a")
	card.RepCount = 3
	card.Interval = 48
	require.NoError(t, repo.Insert(ctx, &card))

	require.NoError(t, repo.UpdateContent(ctx, card.ID, "new q", "new a"))

	got, err := repo.GetByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "new q", got.Question)
	assert.Equal(t, "new a", got.Answer)
	assert.Equal(t, 3, got.RepCount, "editing text must keep the review state")
	assert.Equal(t, 48.0, got.Interval)

	var nf *NotFoundError
	require.ErrorAs(t, repo.UpdateContent(ctx, 9999, "q", "a"), &nf)
}

func TestDeckRepositoryDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	deckRepo := NewDeckRepository(db)
	cardRepo := NewCardRepository(db)
	ctx := context.Background()

	deck := seedDeck(t, db, 1, "Go")
	keep := seedDeck(t, db, 1, "SQL")

	for i := 0; i < 3; i++ {
		card := model.NewCard(deck.ID, "q", "a")
		require.NoError(t, cardRepo.Insert(ctx, &card))
	}
	kept := model.NewCard(keep.ID, "q", "a")
	require.NoError(t, cardRepo.Insert(ctx, &kept))

	require.NoError(t, deckRepo.Delete(ctx, 1, deck.ID))

	count, err := cardRepo.CountByDeck(ctx, deck.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	count, err = cardRepo.CountByDeck(ctx, keep.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "other decks keep their cards")

	var nf *NotFoundError
	require.ErrorAs(t, deckRepo.Delete(ctx, 1, deck.ID), &nf)
}

func TestDeckRepositoryDeleteWrongOwner(t *testing.T) {
	db := newTestDB(t)
	deckRepo := NewDeckRepository(db)
	ctx := context.Background()

	deck := seedDeck(t, db, 1, "Go")

	var nf *NotFoundError
	require.ErrorAs(t, deckRepo.Delete(ctx, 2, deck.ID), &nf)

	_, err := deckRepo.GetByID(ctx, 1, deck.ID)
	assert.NoError(t, err, "deck survives a delete by the wrong owner")
}

func TestDeckRepositoryExistsByName(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeckRepository(db)
	ctx := context.Background()

	seedDeck(t, db, 1, "Spanish")

	for _, name := range []string{"Spanish", "spanish", "SPANISH"} {
		exists, err := repo.ExistsByName(ctx, 1, name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}

	exists, err := repo.ExistsByName(ctx, 1, "French")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByName(ctx, 2, "Spanish")
	require.NoError(t, err)
	assert.False(t, exists, "names are scoped per owner")
}

func TestDeckRepositoryListByOwnerSorted(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeckRepository(db)
	ctx := context.Background()

	seedDeck(t, db, 1, "Zoology")
	seedDeck(t, db, 1, "Anatomy")
	seedDeck(t, db, 2, "Other")

	decks, err := repo.ListByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, "Anatomy", decks[0].Name)
	assert.Equal(t, "Zoology", decks[1].Name)
}

func TestDeckRepositoryGetWithCards(t *testing.T) {
	db := newTestDB(t)
	deckRepo := NewDeckRepository(db)
	cardRepo := NewCardRepository(db)
	ctx := context.Background()

	deck := seedDeck(t, db, 1, "Go")
	for i := 0; i < 2; i++ {
		card := model.NewCard(deck.ID, "q", "a")
		require.NoError(t, cardRepo.Insert(ctx, &card))
	}

	got, err := deckRepo.GetWithCards(ctx, 1, deck.ID)
	require.NoError(t, err)
	assert.Len(t, got.Cards, 2)
}

func TestSettingsRepositoryGetOrCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	settings, err := repo.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultStudyCardLimit, settings.StandardLimit)
	assert.Equal(t, model.DefaultTimerSeconds, settings.TimerSeconds)
	assert.Equal(t, model.DefaultReminderTime, settings.ReminderTime)
	assert.False(t, settings.RemindersEnabled)

	settings.TimedLimit = 15
	require.NoError(t, repo.Save(ctx, settings))

	again, err := repo.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, settings.ID, again.ID, "second call must not create a new row")
	assert.Equal(t, 15, again.TimedLimit)
}

func TestUserRepositoryUpsertFromTelegram(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user, err := repo.UpsertFromTelegram(ctx, 42, "Ada", "Lovelace", "ada")
	require.NoError(t, err)
	require.NotZero(t, user.ID)

	updated, err := repo.UpsertFromTelegram(ctx, 42, "Ada", "King", "ada")
	require.NoError(t, err)
	assert.Equal(t, user.ID, updated.ID)

	found, err := repo.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "King", found.LastName)
}
