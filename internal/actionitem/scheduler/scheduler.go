package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/usemox/mox/internal/actionitem/domain"
	"github.com/usemox/mox/internal/actionitem/repository"
	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/pkg/fcm"
)

// Pusher sends a notification to device tokens and returns the tokens
// that failed.
type Pusher interface {
	SendToDevices(ctx context.Context, tokens []string, n fcm.Notification) ([]string, error)
}

// ReminderScheduler pushes due action item reminders to the account's
// registered devices.
type ReminderScheduler struct {
	items    repository.ActionItemRepository
	devices  accountrepo.DeviceRepository
	pusher   Pusher
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewReminderScheduler(
	items repository.ActionItemRepository,
	devices accountrepo.DeviceRepository,
	pusher Pusher,
	interval time.Duration,
	logger *slog.Logger,
) *ReminderScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReminderScheduler{
		items:    items,
		devices:  devices,
		pusher:   pusher,
		interval: interval,
		logger:   logger.With("component", "reminders"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the check loop until Stop or ctx is done.
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting reminder scheduler", "interval", s.interval)
	go func() {
		defer close(s.done)
		s.CheckOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CheckOnce(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for the current check to finish.
func (s *ReminderScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// CheckOnce sends every due reminder. A reminder is marked sent even when
// delivery fails so it is not repeated every tick.
func (s *ReminderScheduler) CheckOnce(ctx context.Context) {
	items, err := s.items.FindPendingReminders(ctx, s.now())
	if err != nil {
		s.logger.Error("Error finding pending reminders", "error", err)
		return
	}
	for _, item := range items {
		s.remind(ctx, item)
		if err := s.items.MarkReminderSent(ctx, item.ID); err != nil {
			s.logger.Error("Error marking reminder as sent", "item_id", item.ID, "error", err)
		}
	}
}

func (s *ReminderScheduler) remind(ctx context.Context, item *domain.ActionItem) {
	tokens, err := s.devices.GetTokensByAccountID(ctx, item.AccountID)
	if err != nil {
		s.logger.Error("Error getting device tokens", "account_id", item.AccountID, "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	values := make([]string, len(tokens))
	for i, t := range tokens {
		values[i] = t.Token
	}

	body := item.Description
	if item.DueDate != nil {
		body += "\nDue: " + *item.DueDate
	}
	failed, err := s.pusher.SendToDevices(ctx, values, fcm.Notification{
		Title: "Reminder",
		Body:  body,
		Data: map[string]string{
			"type":           "action_item_reminder",
			"action_item_id": item.ID,
			"email_id":       item.EmailID,
		},
	})
	if err != nil {
		s.logger.Error("Error sending reminder", "item_id", item.ID, "error", err)
		return
	}
	for _, token := range failed {
		if err := s.devices.DeleteToken(ctx, token); err != nil {
			s.logger.Warn("Failed to prune device token", "error", err)
		}
	}
}
