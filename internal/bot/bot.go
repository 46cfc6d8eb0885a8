// Package bot lets staff review applications and quote prices from Telegram.
package bot

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
	"github.com/hairbuy/intake/internal/telegram"
)

// API is the subset of the Bot API the bot uses.
type API interface {
	GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error)
	Send(ctx context.Context, msg tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(ctx context.Context, req tgbotapi.Chattable) error
	SendPhotos(ctx context.Context, chatID int64, photos []telegram.Photo) error
}

var _ API = (*telegram.Client)(nil)

// Store is what the bot reads and changes.
type Store interface {
	Get(ctx context.Context, id int64) (store.Application, error)
	MarkViewed(ctx context.Context, id int64) (store.Application, error)
	Recent(ctx context.Context, status store.Status, limit uint64) ([]store.Application, error)
	CountByStatus(ctx context.Context) (map[store.Status]int, error)
	SetStatus(ctx context.Context, id int64, to store.Status) (store.Application, error)
	TelegramAdminByChat(ctx context.Context, chatID int64) (store.TelegramAdmin, error)
}

type Options struct {
	AdminChatIDs []int64
	PollTimeout  time.Duration
}

// Bot answers commands and button presses from admin chats.
type Bot struct {
	api         API
	store       Store
	prices      *pricing.Provider
	logger      *zap.Logger
	admins      map[int64]struct{}
	pollTimeout time.Duration
}

func New(api API, st Store, prices *pricing.Provider, logger *zap.Logger, opts Options) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	admins := make(map[int64]struct{}, len(opts.AdminChatIDs))
	for _, id := range opts.AdminChatIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:         api,
		store:       st,
		prices:      prices,
		logger:      logger,
		admins:      admins,
		pollTimeout: opts.PollTimeout,
	}
}

// Run long-polls for updates until ctx is cancelled. Polling errors back off
// exponentially up to half a minute.
func (b *Bot) Run(ctx context.Context) error {
	var offset int
	backoff := newPollBackoff()
	for {
		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait, _ := backoff.Next()
			b.logger.Warn("telegram poll failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		backoff = newPollBackoff()

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

func newPollBackoff() retry.Backoff {
	return retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
}

// HandleUpdate processes one update. Failures are logged; the poll loop keeps going.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	var err error
	switch {
	case u.CallbackQuery != nil:
		err = b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Text != "":
		err = b.handleMessage(ctx, u.Message)
	default:
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("telegram update failed", zap.Int("update_id", u.UpdateID), zap.Error(err))
	}
}

type access struct {
	read   bool
	manage bool
}

// access resolves what chatID may do. Configured chats may do everything;
// registered chats need is_active to read and can_manage_applications to
// change statuses.
func (b *Bot) access(ctx context.Context, chatID int64) access {
	if _, ok := b.admins[chatID]; ok {
		return access{read: true, manage: true}
	}
	a, err := b.store.TelegramAdminByChat(ctx, chatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Error("telegram admin lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return access{}
	}
	if !a.Active {
		return access{}
	}
	return access{read: true, manage: a.CanManageApplications}
}

func (b *Bot) authorized(ctx context.Context, chatID int64) bool {
	return b.access(ctx, chatID).read
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	_, err := b.api.Send(ctx, htmlMessage(chatID, text, markup))
	return err
}

func htmlMessage(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return msg
}
