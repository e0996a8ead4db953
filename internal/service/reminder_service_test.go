package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueNow(t *testing.T) {
	env := newTestEnv(t)
	svc := env.reminderService()
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 9, 0, 30, 0, time.Local)

	// Disabled by default.
	due, err := svc.DueNow(ctx, *env.user, at)
	require.NoError(t, err)
	assert.False(t, due)

	_, err = env.settingsService().SetRemindersEnabled(ctx, env.user, true)
	require.NoError(t, err)

	due, err = svc.DueNow(ctx, *env.user, at)
	require.NoError(t, err)
	assert.True(t, due, "default reminder time is 09:00")

	due, err = svc.DueNow(ctx, *env.user, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestDueSummary(t *testing.T) {
	env := newTestEnv(t)
	svc := env.reminderService()
	ctx := context.Background()
	now := time.Now()

	// No decks, no message.
	summary, err := svc.DueSummary(ctx, *env.user, now)
	require.NoError(t, err)
	assert.Empty(t, summary)

	deck := env.mustDeck(t, "Go")
	env.mustCard(t, deck.ID, "q1", "a1")
	env.mustCard(t, deck.ID, "q2", "a2")

	quiet := env.mustDeck(t, "Quiet")
	card := env.mustCard(t, quiet.ID, "q", "a")
	card.LastReviewed = now.UnixMilli()
	card.Interval = 1000
	require.NoError(t, env.cardRepo.UpdateReview(ctx, card))

	summary, err = svc.DueSummary(ctx, *env.user, now)
	require.NoError(t, err)
	assert.Contains(t, summary, "2 cards are waiting")
	assert.Contains(t, summary, "Go — 2 due")
	assert.NotContains(t, summary, "Quiet", "decks with nothing due are omitted")
}

func TestCountDue(t *testing.T) {
	env := newTestEnv(t)
	svc := env.reminderService()
	ctx := context.Background()
	now := time.Now()

	deck := env.mustDeck(t, "Go")
	env.mustCard(t, deck.ID, "q1", "a1")
	env.mustCard(t, deck.ID, "q2", "a2")

	count, err := svc.CountDue(ctx, deck.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
