package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
)

// ReminderService builds the daily "cards are waiting" summaries sent
// to users who enabled reminders.
type ReminderService struct {
	deckRepo     *repository.DeckRepository
	cardRepo     *repository.CardRepository
	settingsRepo *repository.SettingsRepository
}

func NewReminderService(deckRepo *repository.DeckRepository, cardRepo *repository.CardRepository, settingsRepo *repository.SettingsRepository) *ReminderService {
	return &ReminderService{deckRepo: deckRepo, cardRepo: cardRepo, settingsRepo: settingsRepo}
}

// DueNow reports whether the user's reminder should fire at this tick:
// reminders enabled and the configured HH:MM matches the wall clock.
func (s *ReminderService) DueNow(ctx context.Context, user model.User, now time.Time) (bool, error) {
	settings, err := s.settingsRepo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if !settings.RemindersEnabled {
		return false, nil
	}
	return settings.ReminderTime == now.Format("15:04"), nil
}

// CountDue reports the number of due cards in one deck.
func (s *ReminderService) CountDue(ctx context.Context, deckID uint, now time.Time) (int64, error) {
	return s.cardRepo.CountDueByDeck(ctx, now.UnixMilli(), deckID)
}

// DueSummary lists each deck with its number of due cards. An empty
// string means nothing is due and no message should be sent.
func (s *ReminderService) DueSummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	decks, err := s.deckRepo.ListByOwner(ctx, user.ID)
	if err != nil {
		return "", err
	}

	nowMillis := now.UnixMilli()
	var builder strings.Builder
	var total int64

	for _, deck := range decks {
		due, err := s.cardRepo.CountDueByDeck(ctx, nowMillis, deck.ID)
		if err != nil {
			return "", err
		}
		if due == 0 {
			continue
		}
		total += due
		builder.WriteString(fmt.Sprintf("• %s — %d due\n", html.EscapeString(deck.Name), due))
	}

	if total == 0 {
		return "", nil
	}

	header := fmt.Sprintf("⏰ <b>Time to study!</b>\n%d cards are waiting for review:\n\n", total)
	return strings.TrimSpace(header + builder.String()), nil
}
