package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
)

const (
	newListLimit = 5
	allListLimit = 10
)

const usagePrice = "Использование: <code>/price &lt;длина&gt; &lt;цвет&gt; [структура] [состояние]</code>\n" +
	"Например: <code>/price 70 блонд славянка натуральные</code>"

// parseCommand splits "/cmd@bot arg1 arg2" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(cmd), fields[1:]
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.Chat == nil {
		return nil
	}
	cmd, args := parseCommand(m.Text)
	chatID := m.Chat.ID

	if cmd == "start" || cmd == "help" {
		return b.reply(ctx, chatID, helpHTML(chatID, b.authorized(ctx, chatID)), nil)
	}
	if !b.authorized(ctx, chatID) {
		return b.reply(ctx, chatID, deniedHTML(chatID), nil)
	}

	switch cmd {
	case "new":
		apps, err := b.store.Recent(ctx, store.StatusNew, newListLimit)
		if err != nil {
			return fmt.Errorf("list new applications: %w", err)
		}
		return b.reply(ctx, chatID, listHTML("Новые заявки", apps), listKeyboard(apps))
	case "all":
		apps, err := b.store.Recent(ctx, "", allListLimit)
		if err != nil {
			return fmt.Errorf("list applications: %w", err)
		}
		return b.reply(ctx, chatID, listHTML("Последние заявки", apps), listKeyboard(apps))
	case "stats":
		counts, err := b.store.CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count applications: %w", err)
		}
		return b.reply(ctx, chatID, statsHTML(counts), nil)
	case "price":
		return b.reply(ctx, chatID, b.quote(args), nil)
	default:
		return b.reply(ctx, chatID, "Неизвестная команда. /start покажет список команд.", nil)
	}
}

// quote prices "/price <length> <color> [structure] [condition]". The
// condition may span several words ("после химии"). Unknown categories fall
// back to defaults, the same way the public calculator does.
func (b *Bot) quote(args []string) string {
	if len(args) < 2 {
		return usagePrice
	}
	length, err := pricing.ParseLength(args[0])
	if err != nil {
		return "Не удалось разобрать длину «" + escape(args[0]) + "».\n" + usagePrice
	}

	in := pricing.Input{Length: length, Color: args[1]}
	if len(args) > 2 {
		in.Structure = args[2]
	}
	if len(args) > 3 {
		in.Condition = strings.Join(args[3:], " ")
	}

	q, err := b.prices.Engine().Compute(in)
	if err != nil {
		return "Не удалось рассчитать цену.\n" + usagePrice
	}
	observability.QuotesComputed.WithLabelValues("telegram").Inc()
	for _, f := range q.Fallbacks {
		observability.CategoryFallbacks.WithLabelValues(f.Field).Inc()
		b.logger.Warn("unrecognized category replaced by default",
			zap.String("source", "telegram"),
			zap.String("field", f.Field),
			zap.String("value", f.Value),
			zap.String("default", f.Default),
		)
	}
	return quoteHTML(length, q)
}
