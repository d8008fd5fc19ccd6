package announce

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// LogChatID receives log lines from SendLog; ChatID when zero.
	LogChatID int64
	Timeout   time.Duration
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram publishes to a chat (optionally a forum thread).
type Telegram struct {
	cfg TelegramConfig
	bot sender
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(cfg, b), nil
}

func newTelegram(cfg TelegramConfig, bot sender) *Telegram {
	return &Telegram{cfg: cfg, bot: bot}
}

func (t *Telegram) Publish(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.cfg.ChatID}, text, &tele.SendOptions{
		ThreadID: t.cfg.ThreadID,
	})
	return err
}

// SendLog implements logx.Sender.
func (t *Telegram) SendLog(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := t.cfg.LogChatID
	if chat == 0 {
		chat = t.cfg.ChatID
	}
	_, err := t.bot.Send(&tele.Chat{ID: chat}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
		DisableNotification:   true,
	})
	return err
}
