package domain

import (
	"context"
	"errors"
	"time"
)

// ErrHistoryExpired is returned when the provider no longer has history
// records starting at the requested watermark.
var ErrHistoryExpired = errors.New("history watermark expired")

// EmailPage is one page of a mailbox listing.
type EmailPage struct {
	Emails        []*Email
	NextPageToken string
}

// HistoryBatch is one page of provider change history.
// HistoryID is the watermark reached once the page is applied.
type HistoryBatch struct {
	Added      []*Email
	RemovedIDs []string
	HistoryID  uint64
}

// HistoryIterator yields history pages on demand. Next returns
// iterator.Done once the history is exhausted.
type HistoryIterator interface {
	Next(ctx context.Context) (*HistoryBatch, error)
}

type WatchResponse struct {
	HistoryID  uint64
	Expiration time.Time
}

type Profile struct {
	EmailAddress  string
	HistoryID     uint64
	MessagesTotal int64
}

type OutgoingAttachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// OutgoingEmail is a message to compose and send.
type OutgoingEmail struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTML        string
	Plain       string
	InReplyTo   string
	References  string
	ThreadID    string
	Attachments []OutgoingAttachment
}

// MailProvider is the remote mailbox of one account.
type MailProvider interface {
	// ListEmails pages through messages, newest first. since restricts the
	// listing to mail received on or after that day.
	ListEmails(ctx context.Context, max int64, pageToken string, since *time.Time) (*EmailPage, error)
	ListHistory(ctx context.Context, since uint64) HistoryIterator
	// GetEmail returns nil, nil when the message no longer exists.
	GetEmail(ctx context.Context, id string) (*Email, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	SendEmail(ctx context.Context, msg *OutgoingEmail) (string, error)
	ModifyLabels(ctx context.Context, ids, add, remove []string) error
	RegisterChangeWatch(ctx context.Context, topic string) (*WatchResponse, error)
	StopChangeWatch(ctx context.Context) error
	GetProfile(ctx context.Context) (*Profile, error)
}

// ProviderResolver hands out the mailbox client of an account.
type ProviderResolver interface {
	ProviderFor(ctx context.Context, accountID string) (MailProvider, error)
}
