package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hairbuy/intake/internal/db"
	"github.com/hairbuy/intake/internal/migrations"
	"github.com/hairbuy/intake/internal/notify"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
	"github.com/hairbuy/intake/internal/telegram"
)

const adminChat = 100

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	edits     []tgbotapi.EditMessageTextConfig
	answers   []string
	media     map[int64][]telegram.Photo
	failChats map[int64]error
	updates   func(offset int) ([]tgbotapi.Update, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{media: map[int64][]telegram.Photo{}, failChats: map[int64]error{}}
}

func (f *fakeAPI) GetUpdates(_ context.Context, offset int, _ time.Duration) ([]tgbotapi.Update, error) {
	return f.updates(offset)
}

func (f *fakeAPI) Send(_ context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, fmt.Errorf("unexpected send %T", c)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failChats[msg.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent), Chat: &tgbotapi.Chat{ID: msg.ChatID}}, nil
}

func (f *fakeAPI) Request(_ context.Context, c tgbotapi.Chattable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r := c.(type) {
	case tgbotapi.CallbackConfig:
		f.answers = append(f.answers, r.Text)
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, r)
	default:
		return fmt.Errorf("unexpected request %T", c)
	}
	return nil
}

func (f *fakeAPI) SendPhotos(_ context.Context, chatID int64, photos []telegram.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[chatID] = photos
	return nil
}

func (f *fakeAPI) lastSent(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) lastAnswer(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.answers)
	return f.answers[len(f.answers)-1]
}

// markup returns the inline keyboard attached to msg, or nil.
func markup(t *testing.T, msg tgbotapi.MessageConfig) *tgbotapi.InlineKeyboardMarkup {
	t.Helper()
	if msg.ReplyMarkup == nil {
		return nil
	}
	kb, ok := msg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup is %T", msg.ReplyMarkup)
	}
	return kb
}

func buttonData(t *testing.T, row []tgbotapi.InlineKeyboardButton) []string {
	t.Helper()
	out := make([]string, 0, len(row))
	for _, b := range row {
		require.NotNil(t, b.CallbackData)
		out = append(out, *b.CallbackData)
	}
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = migrations.Up(ctx, database)
	require.NoError(t, err)
	return store.New(database).WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	})
}

func seedApp(t *testing.T, s *store.Store, name string) store.Application {
	t.Helper()
	a, err := s.Create(context.Background(), store.NewApplication{
		Length:         pricing.LengthCM(70),
		Color:          pricing.ColorBlonde,
		Structure:      pricing.StructureSlavic,
		Condition:      pricing.ConditionNatural,
		Age:            pricing.AgeAdult,
		Photos:         []string{"2026-03-10/a.jpg", "2026-03-10/b.png"},
		Name:           name,
		Phone:          "+7 (912) 345-67-89",
		Comment:        "<b>не жирный</b>",
		EstimatedPrice: 45000,
	})
	require.NoError(t, err)
	return a
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *store.Store) {
	t.Helper()
	api := newFakeAPI()
	s := newTestStore(t)
	b := New(api, s, pricing.NewProvider(nil), zap.NewNop(), Options{AdminChatIDs: []int64{adminChat}})
	return b, api, s
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func callback(chatID int64, messageID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("/Price@hair_bot 70  блонд")
	assert.Equal(t, "price", cmd)
	assert.Equal(t, []string{"70", "блонд"}, args)

	cmd, _ = parseCommand("hello")
	assert.Empty(t, cmd)
}

func TestParseCallback(t *testing.T) {
	action, id, ok := parseCallback("accept_42")
	require.True(t, ok)
	assert.Equal(t, actionAccept, action)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "accept", "accept_", "accept_x", "accept_-1", "delete_4"} {
		_, _, ok := parseCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestStart_ShowsChatIDToAnyone(t *testing.T) {
	b, api, _ := newTestBot(t)

	b.HandleUpdate(context.Background(), message(777, "/start"))
	got := api.lastSent(t)
	assert.Equal(t, int64(777), got.ChatID)
	assert.Contains(t, got.Text, "<code>777</code>")
	assert.Contains(t, got.Text, "только у администраторов")
	assert.Equal(t, tgbotapi.ModeHTML, got.ParseMode)
	assert.True(t, got.DisableWebPagePreview)

	b.HandleUpdate(context.Background(), message(adminChat, "/start"))
	assert.Contains(t, api.lastSent(t).Text, "/price")
}

func TestCommands_RequireAdmin(t *testing.T) {
	b, api, s := newTestBot(t)

	b.HandleUpdate(context.Background(), message(555, "/new"))
	assert.Contains(t, api.lastSent(t).Text, "Доступ запрещён")

	_, err := s.EnsureTelegramAdmin(context.Background(), store.TelegramAdmin{ChatID: 555, Active: true})
	require.NoError(t, err)
	b.HandleUpdate(context.Background(), message(555, "/stats"))
	assert.Contains(t, api.lastSent(t).Text, "Статистика заявок")
}

func TestNew_ListsOnlyNewApplications(t *testing.T) {
	b, api, s := newTestBot(t)
	ctx := context.Background()
	fresh := seedApp(t, s, "Анна")
	taken := seedApp(t, s, "Мария")
	_, err := s.SetStatus(ctx, taken.ID, store.StatusInProgress)
	require.NoError(t, err)

	b.HandleUpdate(ctx, message(adminChat, "/new"))
	got := api.lastSent(t)
	assert.Contains(t, got.Text, "Анна")
	assert.NotContains(t, got.Text, "Мария")
	kb := markup(t, got)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, []string{"app_" + strconv.FormatInt(fresh.ID, 10)}, buttonData(t, kb.InlineKeyboard[0]))

	b.HandleUpdate(ctx, message(adminChat, "/all"))
	got = api.lastSent(t)
	assert.Contains(t, got.Text, "Анна")
	assert.Contains(t, got.Text, "Мария")
	assert.Len(t, markup(t, got).InlineKeyboard, 2)
}

func TestNew_Empty(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.HandleUpdate(context.Background(), message(adminChat, "/new"))
	got := api.lastSent(t)
	assert.Contains(t, got.Text, "Заявок нет")
	assert.Nil(t, markup(t, got))
}

func TestStats_CountsPerStatus(t *testing.T) {
	b, api, s := newTestBot(t)
	ctx := context.Background()
	seedApp(t, s, "Анна")
	r := seedApp(t, s, "Мария")
	_, err := s.SetStatus(ctx, r.ID, store.StatusRejected)
	require.NoError(t, err)

	b.HandleUpdate(ctx, message(adminChat, "/stats"))
	text := api.lastSent(t).Text
	assert.Contains(t, text, "Новая: 1")
	assert.Contains(t, text, "Отклонена: 1")
	assert.Contains(t, text, "Завершена: 0")
	assert.Contains(t, text, "Всего: <b>2</b>")
}

func TestPrice(t *testing.T) {
	b, api, _ := newTestBot(t)
	ctx := context.Background()

	b.HandleUpdate(ctx, message(adminChat, "/price 70 блонд славянка натуральные"))
	text := api.lastSent(t).Text
	assert.Contains(t, text, "45 000 ₽")
	assert.Contains(t, text, "Диапазон: 18 000 – 45 000 ₽")
	assert.Contains(t, text, "70 см (60-80 см)")
	assert.NotContains(t, text, "Не распознано")

	b.HandleUpdate(ctx, message(adminChat, "/price 60-80 purple"))
	text = api.lastSent(t).Text
	// purple falls back to blonde; structure and condition take their defaults.
	assert.Contains(t, text, "40 500 ₽")
	assert.Contains(t, text, "color «purple»")

	b.HandleUpdate(ctx, message(adminChat, "/price 70"))
	assert.Contains(t, api.lastSent(t).Text, "Использование")

	b.HandleUpdate(ctx, message(adminChat, "/price длинные блонд"))
	assert.Contains(t, api.lastSent(t).Text, "Не удалось разобрать длину")
}

func TestPrice_MultiWordConditionAndFallbackLog(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	api := newFakeAPI()
	b := New(api, newTestStore(t), pricing.NewProvider(nil), zap.New(core), Options{AdminChatIDs: []int64{adminChat}})
	ctx := context.Background()

	b.HandleUpdate(ctx, message(adminChat, "/price 70 блонд славянка после химии"))
	text := api.lastSent(t).Text
	// 45000 * 0.5
	assert.Contains(t, text, "22 500 ₽")
	assert.NotContains(t, text, "Не распознано")
	assert.Zero(t, logs.Len())

	b.HandleUpdate(ctx, message(adminChat, "/price 70 brown славянка натуральные"))
	assert.Contains(t, api.lastSent(t).Text, "38 250 ₽", "brown is chestnut")

	b.HandleUpdate(ctx, message(adminChat, "/price 70 purple славянка натуральные"))
	entries := logs.FilterMessage("unrecognized category replaced by default").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "telegram", fields["source"])
	assert.Equal(t, "color", fields["field"])
	assert.Equal(t, "purple", fields["value"])
	assert.Equal(t, "blonde", fields["default"])
}

func TestCallbacks_Lifecycle(t *testing.T) {
	b, api, s := newTestBot(t)
	ctx := context.Background()
	a := seedApp(t, s, "Анна")
	id := strconv.FormatInt(a.ID, 10)

	b.HandleUpdate(ctx, callback(adminChat, 10, "app_"+id))
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusViewed, got.Status)

	detail := api.lastSent(t)
	assert.Contains(t, detail.Text, "&lt;b&gt;не жирный&lt;/b&gt;")
	kb := markup(t, detail)
	require.NotNil(t, kb)
	assert.Equal(t, []string{"accept_" + id, "reject_" + id}, buttonData(t, kb.InlineKeyboard[0]))

	b.HandleUpdate(ctx, callback(adminChat, 10, "accept_"+id))
	assert.Equal(t, "Статус: В работе", api.lastAnswer(t))
	require.Len(t, api.edits, 1)
	require.NotNil(t, api.edits[0].ReplyMarkup)
	assert.Equal(t, []string{"complete_" + id, "reject_" + id}, buttonData(t, api.edits[0].ReplyMarkup.InlineKeyboard[0]))
	assert.Equal(t, 10, api.edits[0].MessageID)
	assert.Equal(t, tgbotapi.ModeHTML, api.edits[0].ParseMode)

	b.HandleUpdate(ctx, callback(adminChat, 10, "complete_"+id))
	require.Len(t, api.edits, 2)
	assert.Nil(t, api.edits[1].ReplyMarkup, "terminal applications have no actions")

	b.HandleUpdate(ctx, callback(adminChat, 10, "reject_"+id))
	assert.Contains(t, api.lastAnswer(t), "недоступно")
	got, err = s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)

	b.HandleUpdate(ctx, callback(adminChat, 10, "accept_9999"))
	assert.Contains(t, api.lastAnswer(t), "не найдена")
}

func TestCallbacks_RequireAdmin(t *testing.T) {
	b, api, s := newTestBot(t)
	a := seedApp(t, s, "Анна")

	b.HandleUpdate(context.Background(), callback(555, 1, "reject_"+strconv.FormatInt(a.ID, 10)))
	assert.Equal(t, "Доступ запрещён", api.lastAnswer(t))

	got, err := s.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusNew, got.Status)
}

func TestCallbacks_StatusChangeNeedsManagePermission(t *testing.T) {
	b, api, s := newTestBot(t)
	ctx := context.Background()
	a := seedApp(t, s, "Анна")
	id := strconv.FormatInt(a.ID, 10)

	const viewer = 555
	_, err := s.EnsureTelegramAdmin(ctx, store.TelegramAdmin{ChatID: viewer, Active: true, CanManageApplications: false})
	require.NoError(t, err)

	b.HandleUpdate(ctx, callback(viewer, 1, "app_"+id))
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusViewed, got.Status, "reading is allowed")

	for _, action := range []string{"accept_", "reject_"} {
		b.HandleUpdate(ctx, callback(viewer, 1, action+id))
		assert.Equal(t, "Недостаточно прав для изменения статуса", api.lastAnswer(t))
	}
	got, err = s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusViewed, got.Status)
	assert.Empty(t, api.edits)

	const manager = 556
	_, err = s.EnsureTelegramAdmin(ctx, store.TelegramAdmin{ChatID: manager, Active: true, CanManageApplications: true})
	require.NoError(t, err)
	b.HandleUpdate(ctx, callback(manager, 1, "accept_"+id))
	got, err = s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, got.Status)
}

func TestCallbacks_InactiveAdminDenied(t *testing.T) {
	b, api, s := newTestBot(t)
	ctx := context.Background()
	a := seedApp(t, s, "Анна")

	_, err := s.EnsureTelegramAdmin(ctx, store.TelegramAdmin{ChatID: 557, Active: false, CanManageApplications: true})
	require.NoError(t, err)
	b.HandleUpdate(ctx, callback(557, 1, "accept_"+strconv.FormatInt(a.ID, 10)))
	assert.Equal(t, "Доступ запрещён", api.lastAnswer(t))
}

func TestRun_AdvancesOffsetAndStops(t *testing.T) {
	b, api, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var offsets []int
	api.updates = func(offset int) ([]tgbotapi.Update, error) {
		offsets = append(offsets, offset)
		if len(offsets) == 1 {
			u := message(adminChat, "/start")
			u.UpdateID = 41
			return []tgbotapi.Update{u}, nil
		}
		cancel()
		return nil, context.Canceled
	}

	require.NoError(t, b.Run(ctx))
	assert.Equal(t, []int{0, 42}, offsets)
	assert.Len(t, api.sent, 1)
}

type fakePhotos map[string][]byte

func (f fakePhotos) Read(name string) ([]byte, error) {
	data, ok := f[name]
	if !ok {
		return nil, errors.New("missing")
	}
	return data, nil
}

func TestNotifier_SendsToEveryAdminChat(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureTelegramAdmin(ctx, store.TelegramAdmin{ChatID: 200, Active: true})
	require.NoError(t, err)
	_, err = s.EnsureTelegramAdmin(ctx, store.TelegramAdmin{ChatID: 300, Active: false})
	require.NoError(t, err)

	photos := fakePhotos{"2026-03-10/a.jpg": []byte("A")}
	n := NewNotifier(api, s, photos, []int64{adminChat, 200}, zap.NewNop())
	a := seedApp(t, s, "Анна")

	require.NoError(t, n.Notify(ctx, notify.Event{Kind: notify.KindApplicationCreated, Application: a}))

	require.Len(t, api.sent, 2)
	chats := []int64{api.sent[0].ChatID, api.sent[1].ChatID}
	assert.ElementsMatch(t, []int64{200, adminChat}, chats)
	assert.Contains(t, api.sent[0].Text, "Новая заявка")
	assert.Equal(t, "accept_"+strconv.FormatInt(a.ID, 10), buttonData(t, markup(t, api.sent[0]).InlineKeyboard[0])[0])

	require.Len(t, api.media[200], 1, "unreadable photos are skipped")
	assert.Equal(t, "a.jpg", api.media[200][0].Name)
	assert.Contains(t, api.media[200][0].Caption, "#"+strconv.FormatInt(a.ID, 10))
}

func TestNotifier_Failures(t *testing.T) {
	ctx := context.Background()
	ev := notify.Event{Kind: notify.KindApplicationCreated, Application: store.Application{ID: 1, Status: store.StatusNew}}
	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	down := &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}

	api := newFakeAPI()
	api.failChats[1] = blocked
	n := NewNotifier(api, nil, nil, []int64{1, 2}, zap.NewNop())
	assert.NoError(t, n.Notify(ctx, ev), "one chat receiving the message is enough")

	api.failChats[2] = blocked
	err := n.Notify(ctx, ev)
	assert.ErrorIs(t, err, notify.ErrPermanent)

	api.failChats[2] = down
	err = n.Notify(ctx, ev)
	require.Error(t, err)
	assert.NotErrorIs(t, err, notify.ErrPermanent)

	empty := NewNotifier(newFakeAPI(), nil, nil, nil, zap.NewNop())
	assert.ErrorIs(t, empty.Notify(ctx, ev), notify.ErrPermanent)
}
