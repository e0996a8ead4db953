package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
	"flashcards-bot/internal/service"
	"flashcards-bot/internal/srs"
)

// handleStudy starts (or offers to start) a session in the given mode.
func (b *Bot) handleStudy(ctx context.Context, msg *tgbotapi.Message, mode service.Mode) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		prefix := fmt.Sprintf("%s%d:", cbStudyPrefix, mode)
		return b.sendDeckPicker(ctx, msg.Chat.ID, user, prefix, fmt.Sprintf("Which deck do you want to study (%s)?", mode))
	}

	deck, err := b.findDeckByArg(ctx, user, args)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Deck not found. Use /decks to see the list.")
	}
	return b.startSession(ctx, msg.Chat.ID, msg.From, deck.ID, mode)
}

func (b *Bot) startSession(ctx context.Context, chatID int64, from *tgbotapi.User, deckID uint, mode service.Mode) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	session, err := b.studySvc.StartSession(ctx, user, deckID, mode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Deck not found.")
		}
		return b.sendText(chatID, fmt.Sprintf("Could not start the session: %s", escape(err.Error())))
	}

	if session.Finished() {
		if mode == service.ModeStandard {
			return b.sendText(chatID, "🎉 Nothing due in this deck. Come back later or drill with /timed.")
		}
		return b.sendText(chatID, "The deck is empty. Add cards with /addcard first.")
	}

	b.setSession(from.ID, session)
	log.Printf("[info] %s session started user=%d deck=%d cards=%d", mode, user.ID, deckID, session.Remaining())

	return b.sendCurrentCard(ctx, chatID, from, session)
}

// sendCurrentCard renders the active card's front, or the session
// summary once the working set is empty.
func (b *Bot) sendCurrentCard(ctx context.Context, chatID int64, from *tgbotapi.User, session *service.Session) error {
	card := session.CurrentCard()
	if card == nil {
		b.clearSession(from.ID)
		return b.sendText(chatID, "🎉 <b>Session complete!</b> No more cards in this round.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🃏 <b>%d cards left</b>\n\n", session.Remaining()))
	builder.WriteString(fmt.Sprintf("❓ %s", escape(card.Question)))

	switch session.Mode() {
	case service.ModeTimed:
		seconds := model.DefaultTimerSeconds
		if user, err := b.ensureUser(ctx, from); err == nil {
			if settings, err := b.settingsSvc.Get(ctx, user); err == nil {
				seconds = settings.TimerSeconds
			}
		}
		builder.WriteString(fmt.Sprintf("\n\n⏱ Try to answer within <b>%d seconds</b>.", seconds))
	case service.ModeAdvanced:
		builder.WriteString("\n\n✍️ Type your answer from memory, then press «Show answer».")
	}

	buttons := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("👀 Show answer", cbFlip),
			tgbotapi.NewInlineKeyboardButtonData("🏁 Stop", cbStopSession),
		},
	}

	out := tgbotapi.NewMessage(chatID, builder.String())
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(out)
	return err
}

// sendCardBack shows the answer side, with grading buttons in standard
// mode and a plain Next in the drill modes.
func (b *Bot) sendCardBack(chatID int64, session *service.Session) error {
	card := session.CurrentCard()
	if card == nil {
		return nil
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("❓ %s\n\n", escape(card.Question)))
	builder.WriteString(fmt.Sprintf("💡 <b>%s</b>", escape(card.Answer)))

	if session.Mode() == service.ModeAdvanced {
		if typed := session.TypedRecall(); typed != "" {
			builder.WriteString(fmt.Sprintf("\n\n✍️ You wrote: %s", escape(typed)))
		} else {
			builder.WriteString("\n\n✍️ You didn't write anything this time.")
		}
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	if session.Mode().AppliesScheduler() {
		builder.WriteString("\n\nHow well did you remember?")
		buttons = append(buttons,
			[]tgbotapi.InlineKeyboardButton{
				scoreButton(srs.VeryHard),
				scoreButton(srs.Hard),
				scoreButton(srs.Medium),
			},
			[]tgbotapi.InlineKeyboardButton{
				scoreButton(srs.Easy),
				scoreButton(srs.TooEasy),
			},
		)
	} else {
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("➡️ Next", cbNextCard),
			tgbotapi.NewInlineKeyboardButtonData("🏁 Stop", cbStopSession),
		})
	}

	out := tgbotapi.NewMessage(chatID, builder.String())
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(out)
	return err
}

func scoreButton(score srs.Score) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("%d · %s", score, score.Label()),
		fmt.Sprintf("%s%d", cbScorePrefix, score),
	)
}

// --- callbacks ---

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, cbStudyPrefix):
		mode, deckID, err := parseStudyCallback(data)
		if err != nil {
			return nil
		}
		return b.startSession(ctx, chatID, cb.From, deckID, mode)

	case data == cbFlip:
		session, ok := b.getSession(cb.From.ID)
		if !ok {
			return b.sendText(chatID, "No active session. Start one with /study.")
		}
		if session.Face() == service.FaceFront {
			session.Flip()
		}
		return b.sendCardBack(chatID, session)

	case strings.HasPrefix(data, cbScorePrefix):
		return b.handleScoreCallback(ctx, chatID, cb.From, data)

	case data == cbNextCard:
		session, ok := b.getSession(cb.From.ID)
		if !ok {
			return b.sendText(chatID, "No active session. Start one with /study.")
		}
		if card := session.CurrentCard(); card != nil {
			session.Dismiss(card)
		}
		return b.sendCurrentCard(ctx, chatID, cb.From, session)

	case data == cbStopSession:
		b.clearSession(cb.From.ID)
		return b.sendText(chatID, "🏁 Session stopped. Progress on reviewed cards is saved.")

	case strings.HasPrefix(data, cbDeckCardsPrefix):
		deckID, err := parseID(data, cbDeckCardsPrefix)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		return b.sendCardList(ctx, chatID, user, deckID)

	case strings.HasPrefix(data, cbDeckAddPrefix):
		deckID, err := parseID(data, cbDeckAddPrefix)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		deck, err := b.deckSvc.GetDeck(ctx, user, deckID)
		if err != nil {
			return b.sendText(chatID, "Deck not found.")
		}
		return b.beginAddCards(cb.From.ID, chatID, deck)

	case strings.HasPrefix(data, cbDeckRenPrefix):
		deckID, err := parseID(data, cbDeckRenPrefix)
		if err != nil {
			return nil
		}
		b.setConversation(cb.From.ID, &conversationState{stage: stageRenameDeck, deckID: deckID})
		return b.sendWithReplyMarkup(chatID, "✏️ Send the new deck name (up to 15 characters).", cancelKeyboard())

	case strings.HasPrefix(data, cbDeckDelPrefix):
		return b.handleDeleteDeckCallback(ctx, chatID, cb.From, data)

	case strings.HasPrefix(data, cbDeckExpPrefix):
		deckID, err := parseID(data, cbDeckExpPrefix)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		return b.sendDeckExport(ctx, chatID, user, deckID)

	case strings.HasPrefix(data, cbCardEditPrefix):
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		card, err := b.findCardByArg(ctx, user, strings.TrimPrefix(data, cbCardEditPrefix))
		if err != nil {
			return b.sendText(chatID, "Card not found, it may have been deleted.")
		}
		b.setConversation(cb.From.ID, &conversationState{stage: stageEditCardQuestion, cardID: card.ID})
		return b.sendWithReplyMarkup(chatID, fmt.Sprintf("✏️ Editing card #%d. Send the new <b>question</b>.", card.ID), cancelKeyboard())

	case strings.HasPrefix(data, cbCardDelPrefix):
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		card, err := b.findCardByArg(ctx, user, strings.TrimPrefix(data, cbCardDelPrefix))
		if err != nil {
			return b.sendText(chatID, "Card not found, it may have been deleted.")
		}
		if err := b.cardSvc.DeleteCards(ctx, []uint{card.ID}); err != nil {
			return b.sendText(chatID, fmt.Sprintf("Could not delete the card: %s", escape(err.Error())))
		}
		log.Printf("[info] card deleted id=%d user=%d", card.ID, user.ID)
		return b.sendText(chatID, fmt.Sprintf("🗑 Card #%d deleted.", card.ID))

	case strings.HasPrefix(data, cbSettingPrefix):
		return b.handleSettingCallback(ctx, chatID, cb.From, strings.TrimPrefix(data, cbSettingPrefix))

	default:
		return nil
	}
}

func (b *Bot) handleScoreCallback(ctx context.Context, chatID int64, from *tgbotapi.User, data string) error {
	session, ok := b.getSession(from.ID)
	if !ok {
		return b.sendText(chatID, "No active session. Start one with /study.")
	}

	raw := strings.TrimPrefix(data, cbScorePrefix)
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	score := srs.Score(value)

	card := session.CurrentCard()
	if card == nil {
		b.clearSession(from.ID)
		return b.sendText(chatID, "🎉 <b>Session complete!</b>")
	}

	if err := session.RecordReview(ctx, card, score); err != nil {
		// The card already left the working set; warn instead of
		// pretending the review was stored.
		log.Printf("persist review card=%d user=%d: %v", card.ID, from.ID, err)
		if sendErr := b.sendText(chatID, "⚠️ The review could not be saved, this card may come back sooner than expected."); sendErr != nil {
			return sendErr
		}
	} else {
		log.Printf("[info] review card=%d score=%d next=%.1fh user=%d", card.ID, score, nextIntervalHours(card, score), from.ID)
	}

	return b.sendCurrentCard(ctx, chatID, from, session)
}

// nextIntervalHours recomputes the interval for logging only.
func nextIntervalHours(card *model.Card, score srs.Score) float64 {
	return srs.Review(*card, score, time.Now()).Interval
}

func (b *Bot) handleDeleteDeckCallback(ctx context.Context, chatID int64, from *tgbotapi.User, data string) error {
	deckID, err := parseID(data, cbDeckDelPrefix)
	if err != nil {
		return nil
	}

	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	deck, err := b.deckSvc.GetDeck(ctx, user, deckID)
	if err != nil {
		return b.sendText(chatID, "Deck not found or already deleted.")
	}

	if err := b.deckSvc.DeleteDeck(ctx, user, deckID); err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			return b.sendText(chatID, "Deck not found or already deleted.")
		}
		return b.sendText(chatID, fmt.Sprintf("Could not delete the deck: %s", escape(err.Error())))
	}

	log.Printf("[info] deck deleted id=%d user=%d", deckID, user.ID)
	return b.sendText(chatID, fmt.Sprintf("🗑 Deck <b>%s</b> and its cards deleted.", escape(deck.Name)))
}

func (b *Bot) handleSettingCallback(ctx context.Context, chatID int64, from *tgbotapi.User, setting string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	if setting == "remtoggle" {
		settings, err := b.settingsSvc.Get(ctx, user)
		if err != nil {
			return b.sendText(chatID, fmt.Sprintf("Could not load settings: %s", escape(err.Error())))
		}
		updated, err := b.settingsSvc.SetRemindersEnabled(ctx, user, !settings.RemindersEnabled)
		if err != nil {
			return b.sendText(chatID, fmt.Sprintf("Could not save the setting: %s", escape(err.Error())))
		}
		state := "off"
		if updated.RemindersEnabled {
			state = fmt.Sprintf("on, daily at %s", updated.ReminderTime)
		}
		return b.sendText(chatID, fmt.Sprintf("🔔 Daily reminder is now <b>%s</b>.", state))
	}

	var prompt string
	switch setting {
	case "standard", "timed", "advanced":
		prompt = fmt.Sprintf("Send the %s session limit (%d–%d cards).", setting, model.MinStudyCardLimit, model.MaxStudyCardLimit)
	case "timer":
		prompt = "Send the timer length in seconds (5–60)."
	case "remindat":
		prompt = "Send the reminder time as HH:MM, for example 09:00."
	default:
		return nil
	}

	b.setConversation(from.ID, &conversationState{stage: stageSettingValue, setting: setting})
	return b.sendWithReplyMarkup(chatID, prompt, cancelKeyboard())
}

func parseStudyCallback(data string) (service.Mode, uint, error) {
	parts := strings.Split(strings.TrimPrefix(data, cbStudyPrefix), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed study callback %q", data)
	}
	mode, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	deckID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return service.Mode(mode), uint(deckID), nil
}

func parseID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}
