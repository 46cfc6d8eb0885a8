package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hairbuy/intake/internal/notify"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
)

const timeLayout = "02.01.2006 15:04"

func escape(s string) string { return html.EscapeString(s) }

func helpHTML(chatID int64, admin bool) string {
	var b strings.Builder
	b.WriteString("<b>Бот приёма заявок</b>\n\n")
	fmt.Fprintf(&b, "Ваш chat id: <code>%d</code>\n", chatID)
	if !admin {
		b.WriteString("\nДоступ к заявкам есть только у администраторов. Передайте chat id администратору.")
		return b.String()
	}
	b.WriteString("\n/new — новые заявки\n")
	b.WriteString("/all — последние заявки\n")
	b.WriteString("/stats — статистика по статусам\n")
	b.WriteString("/price &lt;длина&gt; &lt;цвет&gt; [структура] [состояние] — оценка стоимости")
	return b.String()
}

func deniedHTML(chatID int64) string {
	return fmt.Sprintf("Доступ запрещён. Ваш chat id: <code>%d</code>", chatID)
}

func applicationHTML(a store.Application) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Заявка #%d</b> · %s\n", a.ID, escape(a.Status.Label()))
	fmt.Fprintf(&b, "%s\n\n", a.CreatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "👤 %s\n", escape(a.Name))
	fmt.Fprintf(&b, "📞 %s\n", escape(a.Phone))
	if a.Email != "" {
		fmt.Fprintf(&b, "✉️ %s\n", escape(a.Email))
	}
	if a.City != "" {
		fmt.Fprintf(&b, "📍 %s\n", escape(a.City))
	}
	fmt.Fprintf(&b, "\nДлина: %s\n", escape(a.LengthLabel()))
	fmt.Fprintf(&b, "Цвет: %s\n", escape(a.Color.Label()))
	fmt.Fprintf(&b, "Структура: %s\n", escape(a.Structure.Label()))
	fmt.Fprintf(&b, "Состояние: %s\n", escape(a.Condition.Label()))
	fmt.Fprintf(&b, "Возраст: %s\n", escape(a.Age.Label()))
	fmt.Fprintf(&b, "\n💰 Оценка: <b>%s ₽</b>\n", notify.FormatAmount(a.EstimatedPrice))
	if a.FinalPrice != nil {
		fmt.Fprintf(&b, "Итоговая цена: <b>%s ₽</b>\n", notify.FormatAmount(*a.FinalPrice))
	}
	if a.Comment != "" {
		fmt.Fprintf(&b, "\n💬 %s\n", escape(a.Comment))
	}
	if a.AdminNotes != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", escape(a.AdminNotes))
	}
	fmt.Fprintf(&b, "\nФото: %d", len(a.Photos))
	return b.String()
}

func listHTML(title string, apps []store.Application) string {
	if len(apps) == 0 {
		return "<b>" + escape(title) + "</b>\n\nЗаявок нет."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", escape(title))
	for _, a := range apps {
		fmt.Fprintf(&b, "\n#%d · %s · %s\n%s, %s ₽",
			a.ID, a.CreatedAt.Format(timeLayout), escape(a.Status.Label()),
			escape(a.Name), notify.FormatAmount(a.EstimatedPrice))
	}
	return b.String()
}

func statsHTML(counts map[store.Status]int) string {
	var b strings.Builder
	b.WriteString("<b>Статистика заявок</b>\n\n")
	total := 0
	for _, s := range store.Statuses() {
		n := counts[s]
		total += n
		fmt.Fprintf(&b, "%s: %d\n", escape(s.Label()), n)
	}
	fmt.Fprintf(&b, "\nВсего: <b>%d</b>", total)
	return b.String()
}

func quoteHTML(length pricing.Length, q pricing.Quote) string {
	var b strings.Builder
	b.WriteString("<b>Оценка стоимости</b>\n\n")
	if _, ok := length.CM(); ok {
		fmt.Fprintf(&b, "Длина: %s см (%s)\n", escape(length.String()), escape(q.Band.Label()))
	} else {
		fmt.Fprintf(&b, "Длина: %s\n", escape(q.Band.Label()))
	}
	fmt.Fprintf(&b, "Цвет: %s\n", escape(q.Color.Label()))
	fmt.Fprintf(&b, "Структура: %s\n", escape(q.Structure.Label()))
	fmt.Fprintf(&b, "Состояние: %s\n", escape(q.Condition.Label()))
	fmt.Fprintf(&b, "\n💰 <b>%s ₽</b>\n", notify.FormatAmount(q.Amount))
	fmt.Fprintf(&b, "Диапазон: %s – %s ₽", notify.FormatAmount(q.Min), notify.FormatAmount(q.Max))
	if len(q.Fallbacks) > 0 {
		b.WriteString("\n\nНе распознано, взято значение по умолчанию:")
		for _, f := range q.Fallbacks {
			fmt.Fprintf(&b, "\n• %s «%s»", escape(f.Field), escape(f.Value))
		}
	}
	return b.String()
}

// keyboard offers the transitions allowed from the application's status.
// Terminal applications get none.
func keyboard(a store.Application) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if a.Status.CanTransition(store.StatusInProgress) && a.Status != store.StatusInProgress {
		row = append(row, button("✅ Принять", actionAccept, a.ID))
	}
	if a.Status.CanTransition(store.StatusCompleted) && a.Status != store.StatusCompleted {
		row = append(row, button("🏁 Завершить", actionComplete, a.ID))
	}
	if a.Status.CanTransition(store.StatusRejected) && a.Status != store.StatusRejected {
		row = append(row, button("❌ Отклонить", actionReject, a.ID))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

func listKeyboard(apps []store.Application) *tgbotapi.InlineKeyboardMarkup {
	if len(apps) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(apps))
	for _, a := range apps {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button("#"+strconv.FormatInt(a.ID, 10)+" "+a.Name, actionOpen, a.ID),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func button(text, action string, id int64) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, callbackData(action, id))
}
