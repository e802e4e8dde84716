// Package notify delivers short messages to students, parents and staff.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier sends text to a chat. Text may use Telegram's HTML subset.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Noop discards every message.
type Noop struct{}

func (Noop) Send(context.Context, int64, string) error { return nil }

type Telegram struct {
	bot *tgbotapi.BotAPI
	log *zap.Logger
}

// NewTelegram connects to the bot API with token.
func NewTelegram(token string, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Info("telegram notifier ready", zap.String("bot", bot.Self.UserName))
	return &Telegram{bot: bot, log: log}, nil
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// New returns a Telegram notifier, or Noop when no token is configured.
func New(token string, log *zap.Logger) (Notifier, error) {
	if token == "" {
		log.Info("telegram token not set, notifications disabled")
		return Noop{}, nil
	}
	return NewTelegram(token, log)
}
