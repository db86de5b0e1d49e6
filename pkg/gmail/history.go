package gmail

import (
	"context"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/iterator"

	"github.com/usemox/mox/internal/email/domain"
)

// historyIterator pulls one history page per Next call and waits
// historyDelay before every page after the first.
type historyIterator struct {
	client    *Client
	since     uint64
	pageToken string
	started   bool
	done      bool
}

func (it *historyIterator) Next(ctx context.Context) (*domain.HistoryBatch, error) {
	if it.done {
		return nil, iterator.Done
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.started {
		if err := it.client.sleep(ctx, it.client.historyDelay); err != nil {
			return nil, err
		}
	}
	it.started = true

	call := it.client.srv.Users.History.List(user).
		StartHistoryId(it.since).
		HistoryTypes("messageAdded", "messageDeleted")
	if it.pageToken != "" {
		call = call.PageToken(it.pageToken)
	}

	resp, err := withRetry(ctx, it.client, "history.list", func() (*gmail.ListHistoryResponse, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		it.done = true
		if isNotFound(err) {
			return nil, domain.ErrHistoryExpired
		}
		return nil, fmt.Errorf("unable to list history: %w", err)
	}

	var (
		addedIDs []string
		removed  []string
		seen     = make(map[string]bool)
	)
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message == nil || added.Message.Id == "" || seen[added.Message.Id] {
				continue
			}
			seen[added.Message.Id] = true
			addedIDs = append(addedIDs, added.Message.Id)
		}
		for _, deleted := range h.MessagesDeleted {
			if deleted.Message != nil && deleted.Message.Id != "" {
				removed = append(removed, deleted.Message.Id)
			}
		}
	}

	emails, err := it.client.fetchEmails(ctx, addedIDs)
	if err != nil {
		it.done = true
		return nil, err
	}

	it.pageToken = resp.NextPageToken
	it.done = it.pageToken == ""
	it.client.logger.Debug("Processed history page", "records", len(resp.History), "added", len(emails), "removed", len(removed))

	return &domain.HistoryBatch{
		Added:      emails,
		RemovedIDs: removed,
		HistoryID:  resp.HistoryId,
	}, nil
}
