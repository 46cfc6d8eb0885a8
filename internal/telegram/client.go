package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// DefaultAPIBase is the public Bot API host.
	DefaultAPIBase = "https://api.telegram.org"
	maxMediaGroup  = 10
)

// Photo is an image uploaded from memory.
type Photo struct {
	Name    string
	Data    []byte
	Caption string
}

// Client adapts tgbotapi.BotAPI to context-aware calls.
type Client struct {
	api *tgbotapi.BotAPI
}

// New builds a client without calling getMe, so construction never touches
// the network. apiBase defaults to the public endpoint; a nil httpClient gets
// one with a timeout long enough for long polling.
func New(token, apiBase string, httpClient *http.Client) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	api := &tgbotapi.BotAPI{Token: token, Client: httpClient, Buffer: 100}
	api.SetAPIEndpoint(strings.TrimRight(apiBase, "/") + "/bot%s/%s")
	return &Client{api: api}
}

// GetUpdates long-polls for message and callback updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = int(timeout.Seconds())
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	return call(ctx, "getUpdates", func() ([]tgbotapi.Update, error) {
		return c.api.GetUpdates(cfg)
	})
}

// Send delivers anything that produces a message: text, photos, edits.
func (c *Client) Send(ctx context.Context, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return call(ctx, "send", func() (tgbotapi.Message, error) {
		return c.api.Send(msg)
	})
}

// Request performs a call whose result is not a message, such as
// answerCallbackQuery.
func (c *Client) Request(ctx context.Context, req tgbotapi.Chattable) error {
	_, err := call(ctx, "request", func() (*tgbotapi.APIResponse, error) {
		return c.api.Request(req)
	})
	return err
}

// SendPhotos uploads photos as one album. Telegram requires two to ten items
// per album; a single photo goes out with sendPhoto and extras are dropped.
func (c *Client) SendPhotos(ctx context.Context, chatID int64, photos []Photo) error {
	switch len(photos) {
	case 0:
		return nil
	case 1:
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: photos[0].Name, Bytes: photos[0].Data})
		msg.Caption = photos[0].Caption
		_, err := c.Send(ctx, msg)
		return err
	}

	if len(photos) > maxMediaGroup {
		photos = photos[:maxMediaGroup]
	}
	media := make([]interface{}, 0, len(photos))
	for _, p := range photos {
		item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{Name: p.Name, Bytes: p.Data})
		item.Caption = p.Caption
		media = append(media, item)
	}
	_, err := call(ctx, "sendMediaGroup", func() ([]tgbotapi.Message, error) {
		return c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
	})
	return err
}

// call runs fn so that ctx can abandon it; tgbotapi itself takes no context.
// The abandoned request ends with the HTTP client timeout.
func call[T any](ctx context.Context, method string, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		if r.err != nil {
			// Transport errors carry the URL and with it the token.
			return r.v, fmt.Errorf("%s: %w", method, unwrapURLError(r.err))
		}
		return r.v, nil
	}
}
