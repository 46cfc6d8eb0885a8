package telegram

import (
	"errors"
	"net/http"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// Temporary reports whether a retry may succeed: rate limits, server errors
// and failures that never reached the API.
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

// Permanent reports whether the API rejected the call for good, for example
// because the user blocked the bot.
func Permanent(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && !Temporary(err)
}
