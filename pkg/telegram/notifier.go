// Package telegram posts new-mail notices to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Notice is one new email line.
type Notice struct {
	From    string
	Subject string
	Snippet string
}

type Notifier struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewNotifier creates a send-only bot. Extra options are passed to bot.New.
func NewNotifier(token string, chatID int64, logger *slog.Logger, opts ...bot.Option) (*Notifier, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Notifier{
		bot:    b,
		chatID: chatID,
		logger: logger.With("component", "telegram"),
	}, nil
}

// NotifyNewEmails sends one message summarizing notices for an account.
func (n *Notifier) NotifyNewEmails(ctx context.Context, account string, notices []Notice) error {
	if len(notices) == 0 {
		return nil
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      FormatNotices(account, notices),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	n.logger.Debug("Sent new mail notice", "account", account, "count", len(notices))
	return nil
}

const maxSnippet = 200

// FormatNotices renders notices as Telegram HTML.
func FormatNotices(account string, notices []Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📬 <b>%d new email(s)</b> for %s\n", len(notices), html.EscapeString(account))
	for _, n := range notices {
		subject := n.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		snippet := []rune(n.Snippet)
		if len(snippet) > maxSnippet {
			snippet = append(snippet[:maxSnippet], '…')
		}
		fmt.Fprintf(&b, "\n<b>%s</b>\nFrom: %s\n", html.EscapeString(subject), html.EscapeString(n.From))
		if len(snippet) > 0 {
			fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(string(snippet)))
		}
	}
	return b.String()
}
