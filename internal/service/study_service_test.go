package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
	"flashcards-bot/internal/srs"
)

func TestStartSessionEmptyDeckIsFinished(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Empty")

	for _, mode := range []Mode{ModeStandard, ModeTimed, ModeAdvanced} {
		session, err := svc.StartSession(ctx, env.user, deck.ID, mode)
		require.NoError(t, err, mode.String())
		assert.True(t, session.Finished())
		assert.Nil(t, session.CurrentCard())
	}
}

func TestStartSessionUnknownDeck(t *testing.T) {
	env := newTestEnv(t)

	var nf *repository.NotFoundError
	_, err := env.studyService().StartSession(context.Background(), env.user, 9999, ModeStandard)
	require.ErrorAs(t, err, &nf)
}

func TestStandardSessionSelectsOnlyDueCards(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")

	due := env.mustCard(t, deck.ID, "due", "card")

	notDue := env.mustCard(t, deck.ID, "future", "card")
	notDue.LastReviewed = time.Now().UnixMilli()
	notDue.Interval = 1000
	require.NoError(t, env.cardRepo.UpdateReview(ctx, notDue))

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeStandard)
	require.NoError(t, err)
	require.Equal(t, 1, session.Remaining())
	assert.Equal(t, due.ID, session.CurrentCard().ID)
}

func TestTimedSessionIgnoresDueStatus(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")

	card := env.mustCard(t, deck.ID, "q", "a")
	card.LastReviewed = time.Now().UnixMilli()
	card.Interval = 1000
	require.NoError(t, env.cardRepo.UpdateReview(ctx, card))

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeTimed)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Remaining())
}

func TestSessionRespectsConfiguredLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")

	for i := 0; i < 8; i++ {
		env.mustCard(t, deck.ID, "q", "a")
	}

	_, err := env.settingsService().SetLimit(ctx, env.user, ModeStandard, 5)
	require.NoError(t, err)

	session, err := env.studyService().StartSession(ctx, env.user, deck.ID, ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, 5, session.Remaining())
}

func TestSessionCardLifecycle(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")

	env.mustCard(t, deck.ID, "q1", "a1")
	env.mustCard(t, deck.ID, "q2", "a2")

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeStandard)
	require.NoError(t, err)
	require.Equal(t, 2, session.Remaining())
	assert.Equal(t, FaceFront, session.Face())

	first := session.CurrentCard()
	require.NotNil(t, first)
	again := session.CurrentCard()
	assert.Equal(t, first.ID, again.ID, "repeated draws return the same card")

	session.Flip()
	assert.Equal(t, FaceBack, session.Face())
	session.Flip()
	assert.Equal(t, FaceFront, session.Face())

	require.NoError(t, session.RecordReview(ctx, first, srs.Easy))
	assert.Equal(t, 1, session.Remaining())
	assert.Equal(t, FaceFront, session.Face(), "next card starts front side up")

	stored, err := env.cardRepo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, stored.Interval)
	assert.Equal(t, 1, stored.RepCount)
	assert.NotZero(t, stored.LastReviewed)

	second := session.CurrentCard()
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, session.RecordReview(ctx, second, srs.VeryHard))
	assert.True(t, session.Finished())
	assert.Nil(t, session.CurrentCard())
}

func TestRecordReviewRejectedOutsideStandardMode(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")
	env.mustCard(t, deck.ID, "q", "a")

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeTimed)
	require.NoError(t, err)

	card := session.CurrentCard()
	require.NotNil(t, card)
	require.Error(t, session.RecordReview(ctx, card, srs.Easy))

	// The drill still moves on by dismissing.
	session.Dismiss(card)
	assert.True(t, session.Finished())

	stored, err := env.cardRepo.GetByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.LastReviewed, "dismissal leaves the review state alone")
	assert.Equal(t, 1.0, stored.Interval)
}

func TestRecordReviewDeletedCardContinuesSession(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")

	env.mustCard(t, deck.ID, "q1", "a1")
	env.mustCard(t, deck.ID, "q2", "a2")

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeStandard)
	require.NoError(t, err)

	card := session.CurrentCard()
	require.NotNil(t, card)
	require.NoError(t, env.cardRepo.DeleteByIDs(ctx, []uint{card.ID}))

	// A card deleted mid-session is dropped silently.
	require.NoError(t, session.RecordReview(ctx, card, srs.Easy))
	assert.Equal(t, 1, session.Remaining())
}

func TestAdvancedSessionTypedRecall(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")
	env.mustCard(t, deck.ID, "q", "a")

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeAdvanced)
	require.NoError(t, err)

	card := session.CurrentCard()
	require.NotNil(t, card)

	session.SetTypedRecall("my guess")
	assert.Equal(t, "my guess", session.TypedRecall())

	session.Dismiss(card)
	assert.Empty(t, session.TypedRecall(), "typed recall resets with the card")
}

func TestCurrentCardReturnsCopy(t *testing.T) {
	env := newTestEnv(t)
	svc := env.studyService()
	ctx := context.Background()
	deck := env.mustDeck(t, "Go")
	env.mustCard(t, deck.ID, "q", "a")

	session, err := svc.StartSession(ctx, env.user, deck.ID, ModeStandard)
	require.NoError(t, err)

	card := session.CurrentCard()
	card.Question = "scribbled over"

	var fresh model.Card
	require.NoError(t, env.db.First(&fresh, card.ID).Error)
	assert.Equal(t, "q", fresh.Question)
}
