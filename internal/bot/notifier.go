package bot

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/notify"
	"github.com/hairbuy/intake/internal/store"
	"github.com/hairbuy/intake/internal/telegram"
)

// AdminSource lists chats registered in the database.
type AdminSource interface {
	ActiveTelegramAdmins(ctx context.Context) ([]store.TelegramAdmin, error)
}

// PhotoReader loads stored photos by name.
type PhotoReader interface {
	Read(name string) ([]byte, error)
}

// Notifier posts new applications to every admin chat.
type Notifier struct {
	api     API
	admins  AdminSource
	photos  PhotoReader
	chatIDs []int64
	logger  *zap.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier sends to the active admins in admins plus the configured chatIDs.
func NewNotifier(api API, admins AdminSource, photos PhotoReader, chatIDs []int64, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: api, admins: admins, photos: photos, chatIDs: chatIDs, logger: logger}
}

func (n *Notifier) Name() string { return "telegram" }

// Notify succeeds when at least one chat received the message. When every
// chat failed with an error retrying cannot fix, the result wraps
// notify.ErrPermanent.
func (n *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	chats, err := n.recipients(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return fmt.Errorf("no telegram admin chats: %w", notify.ErrPermanent)
	}

	a := ev.Application
	text := "🆕 <b>Новая заявка</b>\n\n" + applicationHTML(a)
	photos := n.loadPhotos(a)

	var errs []error
	delivered := 0
	for _, chatID := range chats {
		if _, err := n.api.Send(ctx, htmlMessage(chatID, text, keyboard(a))); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		delivered++
		if len(photos) == 0 {
			continue
		}
		if err := n.api.SendPhotos(ctx, chatID, photos); err != nil {
			n.logger.Warn("telegram photos not sent",
				zap.Int64("chat_id", chatID),
				zap.Int64("application_id", a.ID),
				zap.Error(err),
			)
		}
	}

	if delivered > 0 {
		if len(errs) > 0 {
			n.logger.Warn("telegram notification partially delivered",
				zap.Int64("application_id", a.ID),
				zap.Int("delivered", delivered),
				zap.Error(errors.Join(errs...)),
			)
		}
		return nil
	}
	joined := errors.Join(errs...)
	if allPermanent(errs) {
		return fmt.Errorf("%w: %w", notify.ErrPermanent, joined)
	}
	return joined
}

func (n *Notifier) recipients(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok || id == 0 {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if n.admins != nil {
		admins, err := n.admins.ActiveTelegramAdmins(ctx)
		if err != nil {
			return nil, fmt.Errorf("load telegram admins: %w", err)
		}
		for _, a := range admins {
			add(a.ChatID)
		}
	}
	for _, id := range n.chatIDs {
		add(id)
	}
	return out, nil
}

func (n *Notifier) loadPhotos(a store.Application) []telegram.Photo {
	if n.photos == nil {
		return nil
	}
	out := make([]telegram.Photo, 0, len(a.Photos))
	for i, name := range a.Photos {
		data, err := n.photos.Read(name)
		if err != nil {
			n.logger.Warn("photo unreadable", zap.String("photo", name), zap.Error(err))
			continue
		}
		p := telegram.Photo{Name: path.Base(name), Data: data}
		if i == 0 {
			p.Caption = fmt.Sprintf("Фото к заявке #%d", a.ID)
		}
		out = append(out, p)
	}
	return out
}

func allPermanent(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !telegram.Permanent(err) {
			return false
		}
	}
	return true
}
