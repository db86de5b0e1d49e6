package usecase

import (
	"context"

	"github.com/usemox/mox/internal/email/domain"
)

// IngestUsecase is the single write path for mirrored mail.
type IngestUsecase interface {
	// InsertEmails stores emails idempotently and returns the ids that were
	// not stored before.
	InsertEmails(ctx context.Context, accountID string, emails []*domain.Email) ([]string, error)
	// InsertPage is InsertEmails plus the backfill checkpoint, committed
	// together.
	InsertPage(ctx context.Context, accountID string, emails []*domain.Email, nextPageToken string) ([]string, error)
	DeleteEmails(ctx context.Context, ids []string) error
}

// MailboxUsecase serves reads and user actions on the local mailbox.
type MailboxUsecase interface {
	ListEmails(ctx context.Context, accountID string, folder domain.Folder, limit, offset int) ([]*domain.Email, int64, error)
	GetEmail(ctx context.Context, accountID, id string) (*domain.Email, error)
	GetThread(ctx context.Context, accountID, threadID string) ([]*domain.Email, error)
	UnreadCount(ctx context.Context, accountID string) (int64, error)
	Count(ctx context.Context, accountID string) (int64, error)

	MarkAsRead(ctx context.Context, accountID string, ids []string) error
	ArchiveThreads(ctx context.Context, accountID string, threadIDs []string) error
	ModifyLabels(ctx context.Context, accountID string, ids, add, remove []string) error

	GetAttachment(ctx context.Context, accountID, emailID, partID string) (*domain.Attachment, error)
	GetAttachmentByContentID(ctx context.Context, accountID, contentID string) (*domain.Attachment, error)

	SendEmail(ctx context.Context, accountID string, msg *domain.OutgoingEmail) (*domain.Email, error)
	Insights(ctx context.Context, accountID, emailID string) ([]domain.MiddlewareResult, error)
}

// Dispatcher hands stored emails to the derived-data pipeline.
type Dispatcher interface {
	Dispatch(emails []*domain.Email)
}

// VectorDeleter removes vectors from an external index.
type VectorDeleter interface {
	Delete(ctx context.Context, ids ...string) error
}
