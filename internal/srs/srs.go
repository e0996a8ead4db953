// Package srs implements the review scheduling algorithm, an SM-2
// variant with a compressed early ramp: the first three successful
// repetitions land at 12, 24 and 48 hours instead of SM-2's 1 and 6
// days, so cards that are still shaky resurface the same day. From the
// fourth repetition onward the interval grows multiplicatively by the
// card's ease factor, exactly as in SM-2.
package srs

import (
	"time"

	"flashcards-bot/internal/model"
)

// Score is the user's 1-5 self-assessment after recalling a card.
type Score int

const (
	VeryHard Score = 1
	Hard     Score = 2
	Medium   Score = 3
	Easy     Score = 4
	TooEasy  Score = 5
)

// Label returns the text shown on the grading buttons.
func (s Score) Label() string {
	switch s {
	case VeryHard:
		return "Very Hard"
	case Hard:
		return "Hard"
	case Medium:
		return "Medium"
	case Easy:
		return "Easy"
	case TooEasy:
		return "Too Easy"
	default:
		return "Unknown"
	}
}

// Remembered reports whether the score counts as a successful recall.
// The algorithm does not range-check scores: anything below Medium is
// a lapse, anything at or above it a success.
func (s Score) Remembered() bool { return s >= Medium }

// MinEaseFactor is a hard floor. Below it the interval would shrink
// toward zero and the card would never stop coming back.
const MinEaseFactor = 1.3

// Hour intervals for the early repetition ramp and for lapses.
const (
	firstInterval  = 12.0
	secondInterval = 24.0
	thirdInterval  = 48.0
	lapseInterval  = 12.0
)

// Review computes the card's next review state from a recall score.
// It is a pure function: the input card is not modified and nothing is
// persisted here. The caller decides when and whether to store the
// returned card.
func Review(card model.Card, score Score, now time.Time) model.Card {
	if score.Remembered() {
		switch card.RepCount {
		case 0, 1:
			card.Interval = firstInterval
		case 2:
			card.Interval = secondInterval
		case 3:
			card.Interval = thirdInterval
		default:
			card.Interval *= card.EaseFactor
		}

		card.RepCount++

		q := float64(score)
		card.EaseFactor += 0.1 - (5-q)*(0.08+(5-q)*0.02)
		if card.EaseFactor < MinEaseFactor {
			card.EaseFactor = MinEaseFactor
		}
	} else {
		card.RepCount = 0
		card.Interval = lapseInterval
	}

	card.LastReviewed = now.UnixMilli()

	return card
}
