package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
	"flashcards-bot/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageDeckName
	stageRenameDeck
	stageAddCardQuestion
	stageAddCardAnswer
	stageEditCardQuestion
	stageEditCardAnswer
	stageSettingValue
	stageImportJSON
)

const (
	cbStudyPrefix     = "study:"
	cbFlip            = "flip"
	cbScorePrefix     = "score:"
	cbNextCard        = "next"
	cbStopSession     = "stop"
	cbDeckCardsPrefix = "deck:cards:"
	cbDeckAddPrefix   = "deck:add:"
	cbDeckRenPrefix   = "deck:ren:"
	cbDeckDelPrefix   = "deck:del:"
	cbDeckExpPrefix   = "deck:exp:"
	cbCardEditPrefix  = "card:edit:"
	cbCardDelPrefix   = "card:del:"
	cbSettingPrefix   = "set:"
)

const (
	btnDone         = "✔️ Done"
	btnCancelDialog = "⏪ Cancel input"
	menuLabelDecks  = "📚 Decks"
	menuLabelStudy  = "🧠 Study"
	menuLabelNew    = "➕ New deck"
	menuLabelHelp   = "ℹ️ Help"
)

type conversationState struct {
	stage   conversationStage
	deckID  uint
	cardID  uint
	setting string
	card    service.CardInput
}

// Bot aggregates the Telegram API with the study services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	deckSvc       *service.DeckService
	cardSvc       *service.CardService
	studySvc      *service.StudyService
	settingsSvc   *service.SettingsService
	reminderSvc   *service.ReminderService
	conversations map[int64]*conversationState
	sessions      map[int64]*service.Session
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, deckSvc *service.DeckService, cardSvc *service.CardService, studySvc *service.StudyService, settingsSvc *service.SettingsService, reminderSvc *service.ReminderService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		deckSvc:       deckSvc,
		cardSvc:       cardSvc,
		studySvc:      studySvc,
		settingsSvc:   settingsSvc,
		reminderSvc:   reminderSvc,
		conversations: make(map[int64]*conversationState),
		sessions:      make(map[int64]*service.Session),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	// Free text during an advanced session is the recall attempt.
	if session, ok := b.getSession(msg.From.ID); ok {
		if session.Mode() == service.ModeAdvanced && session.Face() == service.FaceFront {
			session.SetTypedRecall(strings.TrimSpace(msg.Text))
			return b.sendText(msg.Chat.ID, "📝 Got it. Press «Show answer» to compare.")
		}
	}

	return b.sendText(msg.Chat.ID, "I didn't catch that. Try /decks to manage decks, /study to review, or /help for all commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "decks":
		return b.handleListDecks(ctx, msg)
	case "newdeck":
		return b.startNewDeckConversation(msg)
	case "addcard":
		return b.handleAddCard(ctx, msg)
	case "cards":
		return b.handleCards(ctx, msg)
	case "editcard":
		return b.handleEditCard(ctx, msg)
	case "delcard":
		return b.handleDelCard(ctx, msg)
	case "study":
		return b.handleStudy(ctx, msg, service.ModeStandard)
	case "timed":
		return b.handleStudy(ctx, msg, service.ModeTimed)
	case "advanced":
		return b.handleStudy(ctx, msg, service.ModeAdvanced)
	case "settings":
		return b.handleSettings(ctx, msg)
	case "export":
		return b.handleExport(ctx, msg)
	case "import":
		return b.startImportConversation(msg)
	case "remind":
		return b.handleRemind(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearSession(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled. Session and pending input discarded.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "friend"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I'm a flashcards tutor: I schedule your reviews so you remember more with less cramming.</b>\n\nCommands:\n"+
			"• /newdeck — create a deck\n"+
			"• /decks — your decks\n"+
			"• /addcard — add cards to a deck\n"+
			"• /study — review due cards (spaced repetition)\n"+
			"• /timed — quick-fire random drill\n"+
			"• /advanced — type the answer before flipping\n"+
			"• /settings — limits, timer, reminders\n"+
			"• /help — all commands",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /decks — list decks with actions\n" +
		"• /newdeck — create a deck (name up to 15 characters)\n" +
		"• /addcard — add cards, question then answer\n" +
		"• /cards — browse a deck's cards, edit or delete\n" +
		"• /editcard, /delcard — change or remove one card by its number\n" +
		"• /study — session with cards that are due now\n" +
		"• /timed — random cards against the clock\n" +
		"• /advanced — recall in writing, then self-grade\n" +
		"• /settings — session limits, timer seconds, daily reminder\n" +
		"• /export — deck backup as JSON\n" +
		"• /import — restore decks from a JSON export\n" +
		"• /remind — what's due right now\n" +
		"• /cancel — drop the current session or input"
	return b.sendText(msg.Chat.ID, text)
}

// --- decks ---

func (b *Bot) handleListDecks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	decks, err := b.deckSvc.ListDecks(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load decks: %s", escape(err.Error())))
	}
	if len(decks) == 0 {
		return b.sendText(msg.Chat.ID, "No decks yet. Create one with /newdeck.")
	}

	now := time.Now()
	var builder strings.Builder
	builder.WriteString("📚 <b>Your decks</b>\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, deck := range decks {
		due, countErr := b.reminderSvc.CountDue(ctx, deck.ID, now)
		if countErr != nil {
			due = 0
		}
		builder.WriteString(fmt.Sprintf("• <b>%s</b> — %d due\n", escape(deck.Name), due))
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🧠 "+shortName(deck.Name, 12), fmt.Sprintf("%s%d:%d", cbStudyPrefix, service.ModeStandard, deck.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗂", fmt.Sprintf("%s%d", cbDeckCardsPrefix, deck.ID)),
			tgbotapi.NewInlineKeyboardButtonData("➕", fmt.Sprintf("%s%d", cbDeckAddPrefix, deck.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️", fmt.Sprintf("%s%d", cbDeckRenPrefix, deck.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("%s%d", cbDeckDelPrefix, deck.ID)),
		})
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, strings.TrimSpace(builder.String()))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) startNewDeckConversation(msg *tgbotapi.Message) error {
	b.setConversation(msg.From.ID, &conversationState{stage: stageDeckName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 What should the deck be called? (up to 15 characters)", cancelKeyboard())
}

// --- cards ---

// handleAddCard enters the add-card loop, either for the deck given as
// an argument or after picking one from a keyboard.
func (b *Bot) handleAddCard(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendDeckPicker(ctx, msg.Chat.ID, user, cbDeckAddPrefix, "Which deck should the cards go to?")
	}

	deck, err := b.findDeckByArg(ctx, user, args)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Deck not found. Use /decks to see the list.")
	}
	return b.beginAddCards(msg.From.ID, msg.Chat.ID, deck)
}

func (b *Bot) beginAddCards(userID, chatID int64, deck *model.Deck) error {
	b.setConversation(userID, &conversationState{stage: stageAddCardQuestion, deckID: deck.ID})
	return b.sendWithReplyMarkup(chatID,
		fmt.Sprintf("🃏 Adding cards to <b>%s</b>.\nSend the <b>question</b> (up to 200 characters), or press «%s» when finished.", escape(deck.Name), btnDone),
		doneKeyboard())
}

func (b *Bot) handleCards(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendDeckPicker(ctx, msg.Chat.ID, user, cbDeckCardsPrefix, "Which deck do you want to browse?")
	}

	deck, err := b.findDeckByArg(ctx, user, args)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Deck not found. Use /decks to see the list.")
	}
	return b.sendCardList(ctx, msg.Chat.ID, user, deck.ID)
}

func (b *Bot) sendCardList(ctx context.Context, chatID int64, user *model.User, deckID uint) error {
	deck, err := b.deckSvc.GetDeck(ctx, user, deckID)
	if err != nil {
		return b.sendText(chatID, "Deck not found.")
	}

	cards, err := b.cardSvc.ListCards(ctx, user, deckID)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load cards: %s", escape(err.Error())))
	}
	if len(cards) == 0 {
		return b.sendText(chatID, fmt.Sprintf("Deck <b>%s</b> has no cards yet. Add some with /addcard.", escape(deck.Name)))
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🗂 <b>%s</b> — %d cards\n\n", escape(deck.Name), len(cards)))

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, card := range cards {
		builder.WriteString(fmt.Sprintf("<b>#%d</b> %s\n", card.ID, escape(shortName(card.Question, 40))))
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✏️ #%d", card.ID), fmt.Sprintf("%s%d", cbCardEditPrefix, card.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("%s%d", cbCardDelPrefix, card.ID)),
		})
	}

	out := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) handleEditCard(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	card, err := b.findCardByArg(ctx, user, strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		return b.sendText(msg.Chat.ID, "Card not found. Card IDs are shown by /cards.")
	}

	b.setConversation(msg.From.ID, &conversationState{stage: stageEditCardQuestion, cardID: card.ID})
	return b.sendWithReplyMarkup(msg.Chat.ID,
		fmt.Sprintf("✏️ Editing card #%d. Send the new <b>question</b>.", card.ID), cancelKeyboard())
}

func (b *Bot) handleDelCard(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	card, err := b.findCardByArg(ctx, user, strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		return b.sendText(msg.Chat.ID, "Card not found. Card IDs are shown by /cards.")
	}

	if err := b.cardSvc.DeleteCards(ctx, []uint{card.ID}); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not delete the card: %s", escape(err.Error())))
	}
	log.Printf("[info] card deleted id=%d user=%d", card.ID, user.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Card #%d deleted.", card.ID))
}

// findCardByArg resolves a card ID argument, checking that the card's
// deck belongs to the caller.
func (b *Bot) findCardByArg(ctx context.Context, user *model.User, arg string) (*model.Card, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse card id %q: %w", arg, err)
	}
	card, err := b.cardSvc.GetCard(ctx, uint(id))
	if err != nil {
		return nil, err
	}
	if _, err := b.deckSvc.GetDeck(ctx, user, card.DeckID); err != nil {
		return nil, err
	}
	return card, nil
}

// --- settings ---

func (b *Bot) handleSettings(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendSettings(ctx, msg.Chat.ID, user)
}

func (b *Bot) sendSettings(ctx context.Context, chatID int64, user *model.User) error {
	settings, err := b.settingsSvc.Get(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load settings: %s", escape(err.Error())))
	}

	reminders := "off"
	if settings.RemindersEnabled {
		reminders = "on, " + settings.ReminderTime
	}

	text := fmt.Sprintf(
		"⚙️ <b>Settings</b>\n"+
			"• Standard session limit: %d cards\n"+
			"• Timed session limit: %d cards\n"+
			"• Advanced session limit: %d cards\n"+
			"• Timer: %d seconds per card\n"+
			"• Daily reminder: %s",
		settings.StandardLimit, settings.TimedLimit, settings.AdvancedLimit, settings.TimerSeconds, reminders,
	)

	buttons := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("Standard limit", cbSettingPrefix+"standard"),
			tgbotapi.NewInlineKeyboardButtonData("Timed limit", cbSettingPrefix+"timed"),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("Advanced limit", cbSettingPrefix+"advanced"),
			tgbotapi.NewInlineKeyboardButtonData("Timer seconds", cbSettingPrefix+"timer"),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("Reminder time", cbSettingPrefix+"remindat"),
			tgbotapi.NewInlineKeyboardButtonData("Toggle reminder", cbSettingPrefix+"remtoggle"),
		},
	}

	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

// --- export / import ---

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendDeckPicker(ctx, msg.Chat.ID, user, cbDeckExpPrefix, "Which deck do you want to export?")
	}

	deck, err := b.findDeckByArg(ctx, user, args)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Deck not found. Use /decks to see the list.")
	}
	return b.sendDeckExport(ctx, msg.Chat.ID, user, deck.ID)
}

func (b *Bot) sendDeckExport(ctx context.Context, chatID int64, user *model.User, deckID uint) error {
	data, err := b.deckSvc.ExportDecks(ctx, user, []uint{deckID})
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Export failed: %s", escape(err.Error())))
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("deck-%d.json", deckID),
		Bytes: data,
	})
	doc.Caption = "Deck export. Send it back via /import to restore."
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) startImportConversation(msg *tgbotapi.Message) error {
	b.setConversation(msg.From.ID, &conversationState{stage: stageImportJSON})
	return b.sendWithReplyMarkup(msg.Chat.ID, "📥 Paste the JSON from a deck export. Decks with taken names get a «(n)» suffix.", cancelKeyboard())
}

// --- reminders ---

func (b *Bot) handleRemind(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	summary, err := b.reminderSvc.DueSummary(ctx, *user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the summary: %s", escape(err.Error())))
	}
	if summary == "" {
		return b.sendText(msg.Chat.ID, "🎉 Nothing is due right now.")
	}
	return b.sendText(msg.Chat.ID, summary)
}

// SendReminders delivers the daily due-card summary to every user
// whose reminder time matches the current minute. Called by the cron
// tick.
func (b *Bot) SendReminders(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		due, err := b.reminderSvc.DueNow(ctx, user, now)
		if err != nil {
			log.Printf("reminder check for user %d: %v", user.TelegramID, err)
			continue
		}
		if !due {
			continue
		}

		summary, err := b.reminderSvc.DueSummary(ctx, user, now)
		if err != nil {
			log.Printf("build summary for user %d: %v", user.TelegramID, err)
			continue
		}
		if summary == "" {
			continue
		}
		if err := b.sendText(user.TelegramID, summary); err != nil {
			log.Printf("send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

// --- conversations ---

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageDeckName:
		deck, err := b.deckSvc.CreateDeck(ctx, user, service.DeckInput{Name: text})
		if err != nil {
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+" Try another name.", cancelKeyboard())
			}
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not create the deck: %s", escape(err.Error())))
		}
		b.clearConversation(msg.From.ID)
		log.Printf("[info] deck created id=%d user=%d", deck.ID, user.ID)
		if err := b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Deck <b>%s</b> created. Add cards with /addcard.", escape(deck.Name))); err != nil {
			return err
		}
		return b.beginAddCards(msg.From.ID, msg.Chat.ID, deck)

	case stageRenameDeck:
		deck, err := b.deckSvc.RenameDeck(ctx, user, state.deckID, service.DeckInput{Name: text})
		if err != nil {
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+" Try another name.", cancelKeyboard())
			}
			b.clearConversation(msg.From.ID)
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Rename failed: %s", escape(err.Error())))
		}
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Deck renamed to <b>%s</b>.", escape(deck.Name)))

	case stageAddCardQuestion:
		if isDoneInput(text) {
			b.clearConversation(msg.From.ID)
			return b.sendText(msg.Chat.ID, "✔️ Finished adding cards.")
		}
		state.card.Question = text
		state.stage = stageAddCardAnswer
		return b.sendWithReplyMarkup(msg.Chat.ID, "Now send the <b>answer</b>.", cancelKeyboard())

	case stageAddCardAnswer:
		state.card.Answer = text
		card, err := b.cardSvc.AddCard(ctx, user, state.deckID, state.card)
		if err != nil {
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				// Re-ask the offending field, keeping the other one.
				if ve.Field == "question" {
					state.stage = stageAddCardQuestion
					return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+" Send the question again.", doneKeyboard())
				}
				return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+" Send the answer again.", cancelKeyboard())
			}
			b.clearConversation(msg.From.ID)
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the card: %s", escape(err.Error())))
		}
		log.Printf("[info] card created id=%d deck=%d user=%d", card.ID, state.deckID, user.ID)
		state.card = service.CardInput{}
		state.stage = stageAddCardQuestion
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("✅ Card #%d added. Next <b>question</b>, or «%s».", card.ID, btnDone), doneKeyboard())

	case stageEditCardQuestion:
		state.card.Question = text
		state.stage = stageEditCardAnswer
		return b.sendWithReplyMarkup(msg.Chat.ID, "Now send the new <b>answer</b>.", cancelKeyboard())

	case stageEditCardAnswer:
		state.card.Answer = text
		card, err := b.cardSvc.EditCard(ctx, user, state.cardID, state.card)
		if err != nil {
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				if ve.Field == "question" {
					state.stage = stageEditCardQuestion
					return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+" Send the question again.", cancelKeyboard())
				}
				return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+" Send the answer again.", cancelKeyboard())
			}
			b.clearConversation(msg.From.ID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return b.sendText(msg.Chat.ID, "Card not found, it may have been deleted.")
			}
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not update the card: %s", escape(err.Error())))
		}
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Card #%d updated.", card.ID))

	case stageSettingValue:
		return b.applySettingValue(ctx, msg, user, state, text)

	case stageImportJSON:
		count, err := b.deckSvc.ImportDecks(ctx, user, []byte(msg.Text))
		if err != nil {
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ That doesn't look like a deck export. Paste the JSON as-is.", cancelKeyboard())
			}
			b.clearConversation(msg.From.ID)
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Import failed: %s", escape(err.Error())))
		}
		b.clearConversation(msg.From.ID)
		log.Printf("[info] imported %d decks user=%d", count, user.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("📥 Imported %d decks. See /decks.", count))

	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Try the command again.")
	}
}

func (b *Bot) applySettingValue(ctx context.Context, msg *tgbotapi.Message, user *model.User, state *conversationState, text string) error {
	var err error
	switch state.setting {
	case "standard":
		err = b.setLimit(ctx, user, service.ModeStandard, text)
	case "timed":
		err = b.setLimit(ctx, user, service.ModeTimed, text)
	case "advanced":
		err = b.setLimit(ctx, user, service.ModeAdvanced, text)
	case "timer":
		var seconds int
		seconds, err = strconv.Atoi(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ Send a number of seconds.", cancelKeyboard())
		}
		_, err = b.settingsSvc.SetTimerSeconds(ctx, user, seconds)
	case "remindat":
		_, err = b.settingsSvc.SetReminderTime(ctx, user, text)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Open /settings again.")
	}

	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			return b.sendWithReplyMarkup(msg.Chat.ID, "⚠️ "+capitalize(ve.Reason)+".", cancelKeyboard())
		}
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the setting: %s", escape(err.Error())))
	}

	b.clearConversation(msg.From.ID)
	if err := b.sendText(msg.Chat.ID, "✅ Setting saved."); err != nil {
		return err
	}
	return b.sendSettings(ctx, msg.Chat.ID, user)
}

func (b *Bot) setLimit(ctx context.Context, user *model.User, mode service.Mode, text string) error {
	limit, err := strconv.Atoi(text)
	if err != nil {
		return &service.ValidationError{Field: "limit", Reason: "the limit must be a number"}
	}
	_, err = b.settingsSvc.SetLimit(ctx, user, mode, limit)
	return err
}

// --- shared helpers ---

// sendDeckPicker shows the user's decks as inline buttons whose
// callback data is prefix + deck ID.
func (b *Bot) sendDeckPicker(ctx context.Context, chatID int64, user *model.User, prefix, prompt string) error {
	decks, err := b.deckSvc.ListDecks(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load decks: %s", escape(err.Error())))
	}
	if len(decks) == 0 {
		return b.sendText(chatID, "No decks yet. Create one with /newdeck.")
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, deck := range decks {
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(shortName(deck.Name, 24), fmt.Sprintf("%s%d", prefix, deck.ID)),
		})
	}

	out := tgbotapi.NewMessage(chatID, prompt)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

// findDeckByArg resolves a /command argument that is either a deck ID
// or a deck name.
func (b *Bot) findDeckByArg(ctx context.Context, user *model.User, arg string) (*model.Deck, error) {
	if id, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return b.deckSvc.GetDeck(ctx, user, uint(id))
	}

	decks, err := b.deckSvc.ListDecks(ctx, user)
	if err != nil {
		return nil, err
	}
	for i := range decks {
		if strings.EqualFold(decks[i].Name, arg) {
			return &decks[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelDecks):
		return true, b.handleListDecks(ctx, msg)
	case strings.ToLower(menuLabelStudy):
		return true, b.handleStudy(ctx, msg, service.ModeStandard)
	case strings.ToLower(menuLabelNew):
		return true, b.startNewDeckConversation(msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) setSession(userID int64, session *service.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[userID] = session
}

func (b *Bot) getSession(userID int64) (*service.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	session, ok := b.sessions[userID]
	return session, ok
}

// clearSession discards the working set; abandoning a session leaves
// no partial review behind.
func (b *Bot) clearSession(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, userID)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelStudy),
			tgbotapi.NewKeyboardButton(menuLabelDecks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNew),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func doneKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDone),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel input"
}

func isDoneInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnDone) || value == "done"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func shortName(name string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(name, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
