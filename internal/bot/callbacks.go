package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/store"
)

const (
	actionOpen     = "app"
	actionAccept   = "accept"
	actionComplete = "complete"
	actionReject   = "reject"
)

var actionStatus = map[string]store.Status{
	actionAccept:   store.StatusInProgress,
	actionComplete: store.StatusCompleted,
	actionReject:   store.StatusRejected,
}

func callbackData(action string, id int64) string {
	return action + "_" + strconv.FormatInt(id, 10)
}

func parseCallback(data string) (string, int64, bool) {
	action, rawID, ok := strings.Cut(data, "_")
	if !ok {
		return "", 0, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	if _, known := actionStatus[action]; !known && action != actionOpen {
		return "", 0, false
	}
	return action, id, true
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	var chatID int64
	if cq.From != nil {
		chatID = cq.From.ID
	}
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
	}
	can := b.access(ctx, chatID)
	if !can.read {
		return b.answer(ctx, cq.ID, "Доступ запрещён")
	}

	action, id, ok := parseCallback(cq.Data)
	if !ok {
		return b.answer(ctx, cq.ID, "Неизвестное действие")
	}

	if action == actionOpen {
		a, err := b.store.MarkViewed(ctx, id)
		if err != nil {
			return b.answerError(ctx, cq.ID, id, err)
		}
		if err := b.answer(ctx, cq.ID, ""); err != nil {
			return err
		}
		return b.reply(ctx, chatID, applicationHTML(a), keyboard(a))
	}

	to := actionStatus[action]
	if !can.manage {
		b.logger.Warn("status change refused",
			zap.Int64("application_id", id),
			zap.String("status", string(to)),
			zap.Int64("chat_id", chatID),
		)
		return b.answer(ctx, cq.ID, "Недостаточно прав для изменения статуса")
	}
	a, err := b.store.SetStatus(ctx, id, to)
	if err != nil {
		return b.answerError(ctx, cq.ID, id, err)
	}
	observability.StatusChanges.WithLabelValues(string(to), "telegram").Inc()
	b.logger.Info("application status changed",
		zap.Int64("application_id", a.ID),
		zap.String("status", string(to)),
		zap.Int64("chat_id", chatID),
	)

	if err := b.answer(ctx, cq.ID, "Статус: "+to.Label()); err != nil {
		return err
	}
	if cq.Message == nil {
		return nil
	}
	edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, applicationHTML(a))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = keyboard(a)
	return b.api.Request(ctx, edit)
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) error {
	return b.api.Request(ctx, tgbotapi.NewCallback(callbackID, text))
}

func (b *Bot) answerError(ctx context.Context, callbackID string, id int64, err error) error {
	var text string
	switch {
	case errors.Is(err, store.ErrNotFound):
		text = fmt.Sprintf("Заявка #%d не найдена", id)
	case errors.Is(err, store.ErrInvalidTransition):
		text = "Это действие недоступно для текущего статуса"
	default:
		_ = b.answer(ctx, callbackID, "Ошибка, попробуйте позже")
		return err
	}
	return b.answer(ctx, callbackID, text)
}
