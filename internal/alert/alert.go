// Package alert delivers operational alerts that need a human, such as a
// round stuck between closed and finished.
package alert

import (
	"context"
	"errors"
	"fmt"

	"blockguess/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Alerter sends one alert.
type Alerter interface {
	Alert(ctx context.Context, subject, detail string) error
}

// Log writes alerts to the logger at error level.
type Log struct {
	L *logger.Logger
}

func (a Log) Alert(_ context.Context, subject, detail string) error {
	a.L.Errorw("ALERT", "subject", subject, "detail", detail)
	return nil
}

// Multi fans an alert out to every alerter and joins their errors.
type Multi []Alerter

func (m Multi) Alert(ctx context.Context, subject, detail string) error {
	var errs []error
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.Alert(ctx, subject, detail); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sender is the part of the bot API used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts alerts to a chat.
type Telegram struct {
	bot    sender
	chatID int64
}

// NewTelegram authenticates the bot token and returns an alerter for chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram alerts need a bot token and a chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Alert(ctx context.Context, subject, detail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("⚠️ %s\n%s", subject, detail))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
