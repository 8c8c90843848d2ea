package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"deadline-bot/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDeadline
	stageWantReminder
	stageReminderAt
	stageWantRepeat
	stagePeriod
	stageCount
	stageEditValue
	stageDayQuery
)

type conversationState struct {
	stage    conversationStage
	input    service.TaskInput
	reminder service.ReminderInput

	// edit flow
	taskID string
	field  string
}

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Options struct {
	Location *time.Location
	// SendRate caps outgoing messages per second across all chats.
	SendRate float64
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api     telegramAPI
	tasks   *service.TaskService
	digest  *service.DigestService
	limiter *rate.Limiter
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger

	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, tasks *service.TaskService, digest *service.DigestService, opts Options, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return newBot(api, tasks, digest, opts, log), nil
}

// NewSender returns a bot that only delivers messages, for processes that
// run the dispatchers without the conversation front end.
func NewSender(token string, opts Options, log zerolog.Logger) (*Bot, error) {
	return New(token, nil, nil, opts, log)
}

func newBot(api telegramAPI, tasks *service.TaskService, digest *service.DigestService, opts Options, log zerolog.Logger) *Bot {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	perSecond := opts.SendRate
	if perSecond <= 0 {
		perSecond = 25
	}
	return &Bot{
		api:           api,
		tasks:         tasks,
		digest:        digest,
		limiter:       rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond))),
		loc:           loc,
		now:           time.Now,
		log:           log.With().Str("component", "bot").Logger(),
		conversations: make(map[int64]*conversationState),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	b.log.Info().Msg("stopped polling updates")
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error().Err(err).Msg("handle callback")
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Msg("handle message")
		}
	}
}

// SendText delivers an HTML message to a user's private chat. It is the
// outward channel the dispatchers use.
func (b *Bot) SendText(ctx context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return b.send(ctx, msg)
}

// SendDigests sends every user with deadlines today a summary of them.
func (b *Bot) SendDigests(ctx context.Context) error {
	summaries, err := b.digest.Summaries(ctx, b.now().In(b.loc))
	if err != nil {
		return fmt.Errorf("build digests: %w", err)
	}
	var errs []error
	for userID, text := range summaries {
		if err := b.SendText(ctx, userID, text); err != nil {
			b.log.Error().Err(err).Int64("user", userID).Msg("send digest")
			errs = append(errs, err)
		}
	}
	b.log.Info().Int("users", len(summaries)).Int("failed", len(errs)).Msg("digests sent")
	return errors.Join(errs...)
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.Send(c)
	return err
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	return b.send(ctx, msg)
}

func (b *Bot) sendWithReplyMarkup(ctx context.Context, chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	return b.send(ctx, msg)
}

func (b *Bot) ack(ctx context.Context, cb *tgbotapi.CallbackQuery, text string) {
	if err := b.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}
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

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
