package notification

import (
	"context"
	"fmt"
	"log/slog"

	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/pkg/events"
	"github.com/usemox/mox/pkg/fcm"
	"github.com/usemox/mox/pkg/telegram"
)

// DevicePusher sends a push to device tokens and returns the failed ones.
type DevicePusher interface {
	SendToDevices(ctx context.Context, tokens []string, n fcm.Notification) ([]string, error)
}

// ChatNotifier posts new-mail notices to a chat.
type ChatNotifier interface {
	NotifyNewEmails(ctx context.Context, account string, notices []telegram.Notice) error
}

// Fanout turns NewEmailsEvents into device pushes and chat messages.
// Either sink may be nil.
type Fanout struct {
	accounts accountrepo.AccountRepository
	devices  accountrepo.DeviceRepository
	pusher   DevicePusher
	chat     ChatNotifier
	logger   *slog.Logger
}

func NewFanout(
	accounts accountrepo.AccountRepository,
	devices accountrepo.DeviceRepository,
	pusher DevicePusher,
	chat ChatNotifier,
	logger *slog.Logger,
) *Fanout {
	return &Fanout{
		accounts: accounts,
		devices:  devices,
		pusher:   pusher,
		chat:     chat,
		logger:   logger.With("component", "fanout"),
	}
}

// Subscribe attaches the fanout to the bus and returns the unsubscribe func.
func (f *Fanout) Subscribe(ctx context.Context, bus *events.Bus) func() {
	return events.Subscribe(bus, events.NewEmailsTopic, func(ev events.NewEmailsEvent) {
		f.Handle(ctx, ev)
	})
}

// Handle notifies about the unread messages of ev.
func (f *Fanout) Handle(ctx context.Context, ev events.NewEmailsEvent) {
	var unread []events.EmailPreview
	for _, e := range ev.Emails {
		if e.Unread {
			unread = append(unread, e)
		}
	}
	if len(unread) == 0 {
		return
	}

	if f.pusher != nil {
		f.pushDevices(ctx, ev.AccountID, unread)
	}
	if f.chat != nil {
		f.postChat(ctx, ev.AccountID, unread)
	}
}

func (f *Fanout) pushDevices(ctx context.Context, accountID string, emails []events.EmailPreview) {
	tokens, err := f.devices.GetTokensByAccountID(ctx, accountID)
	if err != nil {
		f.logger.Error("Failed to load device tokens", "account_id", accountID, "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	ids := make([]string, len(tokens))
	for i, t := range tokens {
		ids[i] = t.Token
	}

	failed, err := f.pusher.SendToDevices(ctx, ids, pushNotification(emails))
	if err != nil {
		f.logger.Error("Failed to push new mail", "account_id", accountID, "error", err)
	}
	for _, token := range failed {
		if err := f.devices.DeleteToken(ctx, token); err != nil {
			f.logger.Warn("Failed to delete device token", "account_id", accountID, "error", err)
		}
	}
}

func pushNotification(emails []events.EmailPreview) fcm.Notification {
	latest := emails[0]
	for _, e := range emails[1:] {
		if e.Date.After(latest.Date) {
			latest = e
		}
	}

	n := fcm.Notification{
		Title: "New email from " + latest.From,
		Body:  latest.Subject,
		Data: map[string]string{
			"type":         "new_emails",
			"messageId":    latest.ID,
			"threadId":     latest.ThreadID,
			"count":        fmt.Sprint(len(emails)),
			"click_action": "/inbox/" + latest.ID,
		},
	}
	if len(emails) > 1 {
		n.Title = fmt.Sprintf("%d new emails", len(emails))
	}
	if n.Body == "" {
		n.Body = "(no subject)"
	}
	return n
}

func (f *Fanout) postChat(ctx context.Context, accountID string, emails []events.EmailPreview) {
	name := accountID
	if acc, err := f.accounts.FindByID(ctx, accountID); err == nil && acc != nil {
		name = acc.Email
	}

	notices := make([]telegram.Notice, len(emails))
	for i, e := range emails {
		notices[i] = telegram.Notice{From: e.From, Subject: e.Subject, Snippet: e.Snippet}
	}
	if err := f.chat.NotifyNewEmails(ctx, name, notices); err != nil {
		f.logger.Error("Failed to post chat notice", "account_id", accountID, "error", err)
	}
}
