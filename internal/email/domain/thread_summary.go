package domain

import "time"

// ThreadSummary stores a cached AI summary of a whole thread.
// It is deleted whenever a new message lands in the thread.
type ThreadSummary struct {
	AccountID string    `json:"account_id" gorm:"primaryKey"`
	ThreadID  string    `json:"thread_id" gorm:"primaryKey"`
	Summary   string    `json:"summary" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ThreadSummary) TableName() string {
	return "email_summaries"
}
