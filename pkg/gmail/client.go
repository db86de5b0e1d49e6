package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/people/v1"

	"github.com/usemox/mox/internal/email/domain"
)

const (
	user = "me"
	// concurrent message fetches per page
	fetchConcurrency = 10
	// wait between history pages
	defaultHistoryDelay = 5 * time.Second
)

// Client implements domain.MailProvider for one Gmail account.
type Client struct {
	srv          *gmail.Service
	contacts     *people.Service
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
	historyDelay time.Duration
	now          func() time.Time
}

var _ domain.MailProvider = (*Client)(nil)

func NewClientWithService(srv *gmail.Service, logger *slog.Logger) *Client {
	return &Client{
		srv:          srv,
		logger:       logger,
		sleep:        sleepCtx,
		historyDelay: defaultHistoryDelay,
		now:          time.Now,
	}
}

// SetHistoryPageDelay overrides the pause between history pages.
func (c *Client) SetHistoryPageDelay(d time.Duration) {
	c.historyDelay = d
}

func (c *Client) ListEmails(ctx context.Context, max int64, pageToken string, since *time.Time) (*domain.EmailPage, error) {
	call := c.srv.Users.Messages.List(user).MaxResults(max)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if since != nil {
		call = call.Q("after:" + since.Format("2006/01/02"))
	}

	resp, err := withRetry(ctx, c, "messages.list", func() (*gmail.ListMessagesResponse, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	emails, err := c.fetchEmails(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &domain.EmailPage{Emails: emails, NextPageToken: resp.NextPageToken}, nil
}

// fetchEmails loads full messages concurrently, keeps input order and
// skips messages deleted in the meantime.
func (c *Client) fetchEmails(ctx context.Context, ids []string) ([]*domain.Email, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	results := make([]*domain.Email, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			email, err := c.GetEmail(gctx, id)
			if err != nil {
				return err
			}
			results[i] = email
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	emails := make([]*domain.Email, 0, len(ids))
	for _, email := range results {
		if email != nil {
			emails = append(emails, email)
		}
	}
	return emails, nil
}

func (c *Client) GetEmail(ctx context.Context, id string) (*domain.Email, error) {
	msg, err := withRetry(ctx, c, "messages.get", func() (*gmail.Message, error) {
		return c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get message %s: %w", id, err)
	}
	return convertMessage(msg), nil
}

func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	part, err := withRetry(ctx, c, "attachments.get", func() (*gmail.MessagePartBody, error) {
		return c.srv.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve attachment: %w", err)
	}
	data, err := decodeData(part.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment data: %w", err)
	}
	return data, nil
}

func (c *Client) SendEmail(ctx context.Context, out *domain.OutgoingEmail) (string, error) {
	raw, err := composeMessage(out, c.now())
	if err != nil {
		return "", fmt.Errorf("unable to compose message: %w", err)
	}
	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: out.ThreadID,
	}
	sent, err := withRetry(ctx, c, "messages.send", func() (*gmail.Message, error) {
		return c.srv.Users.Messages.Send(user, msg).Context(ctx).Do()
	})
	if err != nil {
		return "", fmt.Errorf("unable to send message: %w", err)
	}
	return sent.Id, nil
}

func (c *Client) ModifyLabels(ctx context.Context, ids, add, remove []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := &gmail.BatchModifyMessagesRequest{Ids: ids, AddLabelIds: add, RemoveLabelIds: remove}
	_, err := withRetry(ctx, c, "messages.batchModify", func() (struct{}, error) {
		return struct{}{}, c.srv.Users.Messages.BatchModify(user, req).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("unable to modify labels: %w", err)
	}
	return nil
}

func (c *Client) RegisterChangeWatch(ctx context.Context, topic string) (*domain.WatchResponse, error) {
	req := &gmail.WatchRequest{
		TopicName:           topic,
		LabelFilterBehavior: "include",
	}
	resp, err := withRetry(ctx, c, "users.watch", func() (*gmail.WatchResponse, error) {
		return c.srv.Users.Watch(user, req).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to watch mailbox: %w", err)
	}
	c.logger.Info("Watch started", "history_id", resp.HistoryId, "expiration", resp.Expiration)
	return &domain.WatchResponse{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

func (c *Client) StopChangeWatch(ctx context.Context) error {
	if err := c.srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

func (c *Client) GetProfile(ctx context.Context) (*domain.Profile, error) {
	p, err := withRetry(ctx, c, "users.getProfile", func() (*gmail.Profile, error) {
		return c.srv.Users.GetProfile(user).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get profile: %w", err)
	}
	return &domain.Profile{
		EmailAddress:  p.EmailAddress,
		HistoryID:     p.HistoryId,
		MessagesTotal: p.MessagesTotal,
	}, nil
}

func (c *Client) ListHistory(_ context.Context, since uint64) domain.HistoryIterator {
	return &historyIterator{client: c, since: since}
}
