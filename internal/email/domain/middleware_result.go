package domain

import "time"

// MiddlewareResult is the audit record of one extraction stage run on one email.
type MiddlewareResult struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	MiddlewareID string    `json:"middleware_id" gorm:"uniqueIndex:idx_middleware_email,priority:1;not null"`
	EmailID      string    `json:"email_id" gorm:"uniqueIndex:idx_middleware_email,priority:2;not null"`
	Result       JSON      `json:"result" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        *Email    `json:"-" gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE"`
}
