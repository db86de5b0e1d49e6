package mailsync

import (
	"context"
	"fmt"
	"time"

	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/pkg/events"
)

// initialSync backfills the mailbox newest first, resuming from pageToken.
// Each page and its continuation token commit together.
func (o *Orchestrator) initialSync(ctx context.Context, accountID string, r *run, provider domain.MailProvider, pageToken string) (err error) {
	log := o.logger.With("account_id", accountID, "kind", events.SyncInitial)
	o.setState(accountID, StateInitialSyncing)
	o.publishSync(accountID, events.SyncInitial, events.StatusStarted, nil)
	defer func() { o.publishSync(accountID, events.SyncInitial, events.StatusCompleted, err) }()

	if err := o.syncStates.SetInProgress(ctx, accountID, true); err != nil {
		return fmt.Errorf("mark sync in progress: %w", err)
	}
	if pageToken != "" {
		log.Info("Resuming initial sync", "page_token", pageToken)
	}

	for page := 0; ; page++ {
		if page > 0 && !o.wait(ctx, r) {
			log.Info("Initial sync interrupted", "pages", page)
			return nil
		}
		if r.stopped() {
			return nil
		}

		res, err := provider.ListEmails(ctx, o.opts.PageSize, pageToken, nil)
		if err != nil {
			log.Error("Failed to list emails", "page", page, "error", err)
			if resetErr := o.syncStates.ResetInProgress(context.WithoutCancel(ctx), accountID); resetErr != nil {
				log.Warn("Failed to reset sync flag", "error", resetErr)
			}
			return fmt.Errorf("initial sync: %w", err)
		}

		if _, err := o.ingest.InsertPage(ctx, accountID, res.Emails, res.NextPageToken); err != nil {
			log.Error("Failed to store page, continuing", "page", page, "error", err)
		} else {
			log.Debug("Stored page", "page", page, "emails", len(res.Emails))
		}

		if res.NextPageToken == "" {
			if err := o.syncStates.MarkInitialComplete(ctx, accountID, time.Now()); err != nil {
				return fmt.Errorf("mark initial sync complete: %w", err)
			}
			log.Info("Initial sync completed", "pages", page+1)
			return nil
		}
		pageToken = res.NextPageToken
	}
}

// incrementalSync fetches everything received since the newest stored
// email. It never touches the backfill checkpoint.
func (o *Orchestrator) incrementalSync(ctx context.Context, accountID string, r *run, provider domain.MailProvider, since time.Time) (err error) {
	log := o.logger.With("account_id", accountID, "kind", events.SyncIncremental)
	o.setState(accountID, StateIncrementalSyncing)
	o.publishSync(accountID, events.SyncIncremental, events.StatusStarted, nil)
	defer func() { o.publishSync(accountID, events.SyncIncremental, events.StatusCompleted, err) }()

	pageToken := ""
	stored := 0
	for page := 0; ; page++ {
		if page > 0 && !o.wait(ctx, r) {
			return nil
		}
		if r.stopped() {
			return nil
		}

		res, err := provider.ListEmails(ctx, o.opts.PageSize, pageToken, &since)
		if err != nil {
			log.Error("Failed to list emails", "page", page, "error", err)
			return fmt.Errorf("incremental sync: %w", err)
		}

		newIDs, err := o.ingest.InsertEmails(ctx, accountID, res.Emails)
		if err != nil {
			log.Error("Failed to store page, continuing", "page", page, "error", err)
		}
		stored += len(newIDs)

		if res.NextPageToken == "" {
			log.Info("Incremental sync completed", "pages", page+1, "new", stored)
			return nil
		}
		pageToken = res.NextPageToken
	}
}
