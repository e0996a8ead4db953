package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
	"flashcards-bot/internal/srs"
)

// Mode selects how a study session picks its cards and whether a
// review feeds back into the scheduler. Standard sessions study due
// cards and reschedule them; timed and advanced sessions drill a
// random subset and leave the review state alone.
type Mode int

const (
	ModeStandard Mode = iota
	ModeTimed
	ModeAdvanced
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeTimed:
		return "timed"
	case ModeAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// AppliesScheduler reports whether reviews in this mode update the
// card's spaced-repetition state.
func (m Mode) AppliesScheduler() bool { return m == ModeStandard }

// CardFace tracks which side of the current card is showing.
type CardFace int

const (
	FaceFront CardFace = iota
	FaceBack
)

// Flipped returns the other side.
func (f CardFace) Flipped() CardFace {
	if f == FaceFront {
		return FaceBack
	}
	return FaceFront
}

// Session owns the working set of one study session. It hands out one
// card at a time, drawn uniformly at random among the remaining cards,
// and shrinks as cards are reviewed or dismissed. The set lives only
// for the duration of the session; the card rows in the store remain
// the source of truth.
type Session struct {
	mode     Mode
	deckID   uint
	cards    []model.Card
	current  int // index into cards, -1 when no card is drawn
	face     CardFace
	typed    string // free-text recall input, advanced mode only
	rng      *rand.Rand
	cardRepo *repository.CardRepository
}

// StudyService creates sessions from a deck, a mode and the user's
// configured limits.
type StudyService struct {
	cardRepo     *repository.CardRepository
	deckRepo     *repository.DeckRepository
	settingsRepo *repository.SettingsRepository
}

func NewStudyService(cardRepo *repository.CardRepository, deckRepo *repository.DeckRepository, settingsRepo *repository.SettingsRepository) *StudyService {
	return &StudyService{cardRepo: cardRepo, deckRepo: deckRepo, settingsRepo: settingsRepo}
}

// StartSession builds the working set for the deck and mode. An empty
// set is not an error: the session simply starts out finished and the
// caller shows "session complete" / "no cards due".
func (s *StudyService) StartSession(ctx context.Context, user *model.User, deckID uint, mode Mode) (*Session, error) {
	if _, err := s.deckRepo.GetByID(ctx, user.ID, deckID); err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var cards []model.Card
	switch mode {
	case ModeStandard:
		cards, err = s.cardRepo.GetDueCards(ctx, time.Now().UnixMilli(), settings.StandardLimit, deckID)
	case ModeTimed:
		cards, err = s.cardRepo.GetRandomCards(ctx, settings.TimedLimit, deckID)
	case ModeAdvanced:
		cards, err = s.cardRepo.GetRandomCards(ctx, settings.AdvancedLimit, deckID)
	default:
		return nil, fmt.Errorf("unknown study mode %d", mode)
	}
	if err != nil {
		return nil, err
	}

	return &Session{
		mode:     mode,
		deckID:   deckID,
		cards:    cards,
		current:  -1,
		cardRepo: s.cardRepo,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Session) Mode() Mode   { return s.mode }
func (s *Session) DeckID() uint { return s.deckID }

// Finished reports whether the working set is exhausted.
func (s *Session) Finished() bool { return len(s.cards) == 0 }

// Remaining is the number of cards still in the working set.
func (s *Session) Remaining() int { return len(s.cards) }

// CurrentCard returns the card being studied, drawing a random one
// from the working set if none is active. Returns nil once the
// session is finished.
func (s *Session) CurrentCard() *model.Card {
	if s.Finished() {
		return nil
	}
	if s.current < 0 {
		s.current = s.rng.Intn(len(s.cards))
		s.face = FaceFront
		s.typed = ""
	}
	card := s.cards[s.current]
	return &card
}

// Face is the side of the current card that is showing.
func (s *Session) Face() CardFace { return s.face }

// Flip turns the current card over.
func (s *Session) Flip() { s.face = s.face.Flipped() }

// SetTypedRecall stores the free-text answer attempt in advanced mode.
// It is shown next to the real answer but never graded automatically;
// scoring stays a self-assessment.
func (s *Session) SetTypedRecall(text string) { s.typed = text }

// TypedRecall returns the stored answer attempt.
func (s *Session) TypedRecall() string { return s.typed }

// RecordReview grades the current card and reschedules it. Only valid
// in standard mode. The card leaves the working set immediately; the
// store write happens after, and its error is returned so the caller
// decides whether to surface it. The in-memory removal is not rolled
// back on a failed write, so at worst one review is lost, never a
// stuck session.
func (s *Session) RecordReview(ctx context.Context, card *model.Card, score srs.Score) error {
	if !s.mode.AppliesScheduler() {
		return fmt.Errorf("%s mode does not schedule reviews", s.mode)
	}

	updated := srs.Review(*card, score, time.Now())
	s.remove(card.ID)

	if err := s.cardRepo.UpdateReview(ctx, &updated); err != nil {
		// Deleted from under the session: drop it and keep going.
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	return nil
}

// Dismiss removes a card from the working set without touching its
// review state. Timed and advanced modes end every card this way.
func (s *Session) Dismiss(card *model.Card) {
	s.remove(card.ID)
}

func (s *Session) remove(cardID uint) {
	for i, c := range s.cards {
		if c.ID == cardID {
			s.cards = append(s.cards[:i], s.cards[i+1:]...)
			break
		}
	}
	s.current = -1
	s.face = FaceFront
	s.typed = ""
}
