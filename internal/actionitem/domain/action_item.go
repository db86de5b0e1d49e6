package domain

import (
	"errors"
	"time"

	emaildomain "github.com/usemox/mox/internal/email/domain"
)

var (
	ErrActionItemNotFound = errors.New("action item not found")
	ErrForbidden          = errors.New("action item belongs to another account")
)

// ActionItem is a to-do extracted from an email body.
// DueDate is kept as the free text the sender wrote ("Friday", "tomorrow at 2pm").
type ActionItem struct {
	ID           string             `json:"id" gorm:"primaryKey"`
	AccountID    string             `json:"account_id" gorm:"index;not null"`
	EmailID      string             `json:"email_id" gorm:"index;not null"`
	Description  string             `json:"description" gorm:"not null"`
	DueDate      *string            `json:"due_date,omitempty"`
	Completed    bool               `json:"completed" gorm:"not null"`
	ReminderAt   *time.Time         `json:"reminder_at,omitempty"`
	ReminderSent bool               `json:"reminder_sent" gorm:"not null"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Email        *emaildomain.Email `json:"-" gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE"`
}
