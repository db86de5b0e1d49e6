package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
)

// cidSrc matches inline image references in HTML bodies.
var cidSrc = regexp.MustCompile(`src=(["'])cid:([^"']+)(["'])`)

type mailboxUsecase struct {
	emails    repository.EmailRepository
	results   repository.MiddlewareResultRepository
	providers domain.ProviderResolver
	ingest    IngestUsecase
	// attachmentBase prefixes rewritten cid: references.
	attachmentBase string
	logger         *slog.Logger
}

func NewMailboxUsecase(
	emails repository.EmailRepository,
	results repository.MiddlewareResultRepository,
	providers domain.ProviderResolver,
	ingest IngestUsecase,
	attachmentBase string,
	logger *slog.Logger,
) MailboxUsecase {
	if attachmentBase == "" {
		attachmentBase = "/api/attachments/cid/"
	}
	return &mailboxUsecase{
		emails:         emails,
		results:        results,
		providers:      providers,
		ingest:         ingest,
		attachmentBase: attachmentBase,
		logger:         logger.With("component", "mailbox"),
	}
}

func (u *mailboxUsecase) ListEmails(ctx context.Context, accountID string, folder domain.Folder, limit, offset int) ([]*domain.Email, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return u.emails.List(ctx, accountID, folder, limit, offset)
}

// GetEmail hides messages of other accounts behind ErrEmailNotFound.
func (u *mailboxUsecase) GetEmail(ctx context.Context, accountID, id string) (*domain.Email, error) {
	email, err := u.emails.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if email == nil || email.AccountID != accountID {
		return nil, domain.ErrEmailNotFound
	}
	return email, nil
}

func (u *mailboxUsecase) GetThread(ctx context.Context, accountID, threadID string) ([]*domain.Email, error) {
	emails, err := u.emails.GetThread(ctx, accountID, threadID)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, domain.ErrEmailNotFound
	}
	for _, e := range emails {
		if e.Body != nil && e.Body.HTML != "" {
			e.Body.HTML = u.rewriteCIDs(e.Body.HTML)
		}
	}
	return emails, nil
}

// rewriteCIDs points cid: image sources at the attachment endpoint.
func (u *mailboxUsecase) rewriteCIDs(html string) string {
	return cidSrc.ReplaceAllStringFunc(html, func(m string) string {
		parts := cidSrc.FindStringSubmatch(m)
		return "src=" + parts[1] + u.attachmentBase + url.PathEscape(parts[2]) + parts[3]
	})
}

func (u *mailboxUsecase) UnreadCount(ctx context.Context, accountID string) (int64, error) {
	return u.emails.UnreadCount(ctx, accountID)
}

func (u *mailboxUsecase) Count(ctx context.Context, accountID string) (int64, error) {
	return u.emails.Count(ctx, accountID)
}

// MarkAsRead updates the local rows first so the UI reflects the change
// even when the provider call fails.
func (u *mailboxUsecase) MarkAsRead(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := u.emails.MarkAsRead(ctx, accountID, ids); err != nil {
		return err
	}

	provider, err := u.providers.ProviderFor(ctx, accountID)
	if err != nil {
		return err
	}
	if err := provider.ModifyLabels(ctx, ids, nil, []string{"UNREAD"}); err != nil {
		u.logger.Error("Failed to mark as read on provider", "account_id", accountID, "error", err)
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

func (u *mailboxUsecase) ArchiveThreads(ctx context.Context, accountID string, threadIDs []string) error {
	return u.emails.ArchiveThreads(ctx, accountID, threadIDs)
}

func (u *mailboxUsecase) ModifyLabels(ctx context.Context, accountID string, ids, add, remove []string) error {
	if len(ids) == 0 || (len(add) == 0 && len(remove) == 0) {
		return nil
	}

	owned := make([]*domain.Email, 0, len(ids))
	for _, id := range ids {
		email, err := u.GetEmail(ctx, accountID, id)
		if err != nil {
			return err
		}
		owned = append(owned, email)
	}

	provider, err := u.providers.ProviderFor(ctx, accountID)
	if err != nil {
		return err
	}
	if err := provider.ModifyLabels(ctx, ids, add, remove); err != nil {
		return fmt.Errorf("modify labels: %w", err)
	}

	for _, email := range owned {
		if err := u.emails.UpdateLabels(ctx, email.ID, applyLabels(email.Labels, add, remove)); err != nil {
			return err
		}
	}
	return nil
}

func applyLabels(labels domain.StringArray, add, remove []string) domain.StringArray {
	drop := make(map[string]struct{}, len(remove))
	for _, l := range remove {
		drop[l] = struct{}{}
	}
	out := domain.StringArray{}
	for _, l := range labels {
		if _, ok := drop[l]; !ok {
			out = append(out, l)
		}
	}
	for _, l := range add {
		if !out.Contains(l) {
			out = append(out, l)
		}
	}
	return out
}

func (u *mailboxUsecase) GetAttachment(ctx context.Context, accountID, emailID, partID string) (*domain.Attachment, error) {
	if _, err := u.GetEmail(ctx, accountID, emailID); err != nil {
		return nil, err
	}
	att, err := u.emails.GetAttachment(ctx, emailID, partID)
	if err != nil {
		return nil, err
	}
	if att == nil {
		return nil, domain.ErrAttachmentNotFound
	}
	return att, u.loadData(ctx, accountID, att)
}

func (u *mailboxUsecase) GetAttachmentByContentID(ctx context.Context, accountID, contentID string) (*domain.Attachment, error) {
	att, err := u.emails.GetAttachmentByContentID(ctx, accountID, contentID)
	if err != nil {
		return nil, err
	}
	if att == nil {
		return nil, domain.ErrAttachmentNotFound
	}
	return att, u.loadData(ctx, accountID, att)
}

// loadData downloads attachment bytes on first access and stores them.
func (u *mailboxUsecase) loadData(ctx context.Context, accountID string, att *domain.Attachment) error {
	if len(att.Data) > 0 {
		return nil
	}
	if att.AttachmentID == "" {
		return domain.ErrAttachmentNotFound
	}

	provider, err := u.providers.ProviderFor(ctx, accountID)
	if err != nil {
		return err
	}
	data, err := provider.GetAttachment(ctx, att.EmailID, att.AttachmentID)
	if err != nil {
		return fmt.Errorf("download attachment: %w", err)
	}
	att.Data = data

	if err := u.emails.SaveAttachmentData(ctx, att.EmailID, att.PartID, data); err != nil {
		u.logger.Warn("Failed to cache attachment data", "email_id", att.EmailID, "part_id", att.PartID, "error", err)
	}
	return nil
}

// SendEmail sends through the provider and then stores the sent message
// so it shows up without waiting for the next sync.
func (u *mailboxUsecase) SendEmail(ctx context.Context, accountID string, msg *domain.OutgoingEmail) (*domain.Email, error) {
	provider, err := u.providers.ProviderFor(ctx, accountID)
	if err != nil {
		return nil, err
	}

	id, err := provider.SendEmail(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}

	sent, err := provider.GetEmail(ctx, id)
	if err != nil {
		u.logger.Warn("Failed to fetch sent email", "account_id", accountID, "email_id", id, "error", err)
		return nil, nil
	}
	if sent == nil {
		return nil, nil
	}
	if _, err := u.ingest.InsertEmails(ctx, accountID, []*domain.Email{sent}); err != nil {
		u.logger.Warn("Failed to store sent email", "account_id", accountID, "email_id", id, "error", err)
	}
	return sent, nil
}

func (u *mailboxUsecase) Insights(ctx context.Context, accountID, emailID string) ([]domain.MiddlewareResult, error) {
	if _, err := u.GetEmail(ctx, accountID, emailID); err != nil {
		return nil, err
	}
	return u.results.ListByEmail(ctx, emailID)
}
