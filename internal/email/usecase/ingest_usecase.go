package usecase

import (
	"context"
	"fmt"
	"log/slog"

	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/pkg/events"
)

type ingestUsecase struct {
	emails   repository.EmailRepository
	accounts accountrepo.AccountRepository
	bus      *events.Bus
	derived  Dispatcher
	vectors  VectorDeleter
	logger   *slog.Logger
}

// NewIngestUsecase creates the ingestion pipeline. derived and vectors
// may be nil.
func NewIngestUsecase(
	emails repository.EmailRepository,
	accounts accountrepo.AccountRepository,
	bus *events.Bus,
	derived Dispatcher,
	vectors VectorDeleter,
	logger *slog.Logger,
) IngestUsecase {
	return &ingestUsecase{
		emails:   emails,
		accounts: accounts,
		bus:      bus,
		derived:  derived,
		vectors:  vectors,
		logger:   logger.With("component", "ingest"),
	}
}

func (u *ingestUsecase) InsertEmails(ctx context.Context, accountID string, emails []*domain.Email) ([]string, error) {
	return u.insert(ctx, accountID, emails, "")
}

func (u *ingestUsecase) InsertPage(ctx context.Context, accountID string, emails []*domain.Email, nextPageToken string) ([]string, error) {
	return u.insert(ctx, accountID, emails, nextPageToken)
}

func (u *ingestUsecase) insert(ctx context.Context, accountID string, emails []*domain.Email, pageToken string) ([]string, error) {
	if len(emails) == 0 && pageToken == "" {
		return nil, nil
	}

	var maxHistory uint64
	for _, e := range emails {
		if e == nil {
			continue
		}
		e.AccountID = accountID
		e.Folder = domain.FolderFromLabels(e.Labels)
		if e.HistoryID > maxHistory {
			maxHistory = e.HistoryID
		}
	}

	newIDs, err := u.emails.InsertEmails(ctx, accountID, emails, pageToken)
	if err != nil {
		u.logger.Error("Failed to insert emails", "account_id", accountID, "count", len(emails), "error", err)
		return nil, fmt.Errorf("insert emails: %w", err)
	}

	if maxHistory > 0 {
		if _, err := u.accounts.AdvanceHistoryID(ctx, accountID, maxHistory); err != nil {
			u.logger.Warn("Failed to advance history watermark", "account_id", accountID, "error", err)
		}
	}

	if len(newIDs) == 0 {
		return nil, nil
	}

	isNew := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		isNew[id] = struct{}{}
	}
	fresh := make([]*domain.Email, 0, len(newIDs))
	previews := make([]events.EmailPreview, 0, len(newIDs))
	for _, e := range emails {
		if e == nil {
			continue
		}
		if _, ok := isNew[e.ID]; !ok {
			continue
		}
		// duplicates in the input must only be announced once
		delete(isNew, e.ID)
		fresh = append(fresh, e)
		previews = append(previews, events.EmailPreview{
			ID:       e.ID,
			ThreadID: e.ThreadID,
			From:     e.From,
			Subject:  e.Subject,
			Snippet:  e.Snippet,
			Date:     e.Date,
			Unread:   e.Unread,
		})
	}

	u.logger.Info("Stored new emails", "account_id", accountID, "new", len(newIDs), "received", len(emails))
	events.Publish(u.bus, events.NewEmailsTopic, events.NewEmailsEvent{AccountID: accountID, Emails: previews})
	if u.derived != nil {
		u.derived.Dispatch(fresh)
	}
	return newIDs, nil
}

func (u *ingestUsecase) DeleteEmails(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := u.emails.DeleteEmails(ctx, ids); err != nil {
		u.logger.Error("Failed to delete emails", "count", len(ids), "error", err)
		return fmt.Errorf("delete emails: %w", err)
	}
	if u.vectors != nil {
		if err := u.vectors.Delete(ctx, ids...); err != nil {
			u.logger.Warn("Failed to delete vectors", "count", len(ids), "error", err)
		}
	}
	return nil
}
