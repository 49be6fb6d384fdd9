package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/meetclaw/internal/bus"
	"github.com/stellarlinkco/meetclaw/internal/config"
)

// TelegramBot is the subset of the bot API the notifier needs.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Telegram has a 4096 char limit per message
const telegramMaxLen = 4000

type TelegramNotifier struct {
	bot     TelegramBot
	chatIDs []int64
}

func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithFactory(cfg, defaultBotFactory)
}

// NewTelegramNotifierWithFactory creates the notifier with a custom bot factory (for testing)
func NewTelegramNotifierWithFactory(cfg config.TelegramConfig, factory BotFactory) (*TelegramNotifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("telegram chatIds are required")
	}

	client := http.DefaultClient
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	}

	bot, err := factory(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return &TelegramNotifier{bot: bot, chatIDs: cfg.ChatIDs}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, n bus.Notification) error {
	text := Report(n)
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.send(chatID, text); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) send(chatID int64, text string) error {
	content := toTelegramHTML(text)
	for len(content) > 0 {
		chunk := content
		if len(chunk) > telegramMaxLen {
			// Try to split at last newline before the limit
			idx := strings.LastIndex(chunk[:telegramMaxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:telegramMaxLen]
			}
		}
		content = content[len(chunk):]

		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(msg); err != nil {
			// Retry the whole report as plain text
			msg.ParseMode = ""
			msg.Text = text
			if _, err2 := t.bot.Send(msg); err2 != nil {
				return fmt.Errorf("send telegram message to %d: %w", chatID, err2)
			}
			return nil
		}
	}
	return nil
}

// toTelegramHTML escapes HTML and turns **bold** into <b>bold</b>.
func toTelegramHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	for {
		start := strings.Index(s, "**")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+2:], "**")
		if end == -1 {
			break
		}
		end += start + 2
		s = s[:start] + "<b>" + s[start+2:end] + "</b>" + s[end+2:]
	}
	return s
}
