package domain

import (
	"errors"
	"time"
)

var (
	ErrEmailNotFound      = errors.New("email not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// Email is the local mirror of one provider message.
type Email struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	AccountID   string       `json:"account_id" gorm:"index:idx_emails_account_date,priority:1;not null"`
	ThreadID    string       `json:"thread_id" gorm:"index;not null"`
	From        string       `json:"from" gorm:"column:from_address"`
	To          string       `json:"to" gorm:"column:to_address"`
	Cc          string       `json:"cc,omitempty" gorm:"column:cc_address"`
	Subject     string       `json:"subject"`
	Snippet     string       `json:"snippet"`
	Date        time.Time    `json:"date" gorm:"index:idx_emails_account_date,priority:2"`
	Unread      bool         `json:"unread" gorm:"not null"`
	Folder      Folder       `json:"folder" gorm:"type:varchar(16);index;not null"`
	Labels      StringArray  `json:"labels" gorm:"type:text"`
	HistoryID   uint64       `json:"history_id"`
	SyncedAt    time.Time    `json:"synced_at"`
	Body        *EmailBody   `json:"body,omitempty" gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE"`
}

// HasBody reports whether the message carries any body content.
func (e *Email) HasBody() bool {
	return e.Body != nil && (e.Body.HTML != "" || e.Body.Plain != "")
}

// EmailBody is immutable once stored.
type EmailBody struct {
	EmailID string `json:"email_id" gorm:"primaryKey"`
	HTML    string `json:"html" gorm:"type:text"`
	Plain   string `json:"plain" gorm:"type:text"`
}

func (EmailBody) TableName() string {
	return "email_bodies"
}

// Attachment is one MIME part with a filename or Content-ID.
// AttachmentID is the provider handle used to download Data lazily.
type Attachment struct {
	EmailID      string `json:"email_id" gorm:"primaryKey"`
	PartID       string `json:"part_id" gorm:"primaryKey"`
	AttachmentID string `json:"attachment_id"`
	MimeType     string `json:"mime_type"`
	Filename     string `json:"filename"`
	ContentID    string `json:"content_id,omitempty" gorm:"index"`
	Size         int64  `json:"size"`
	Data         []byte `json:"-"`
}

func (Attachment) TableName() string {
	return "email_attachments"
}
