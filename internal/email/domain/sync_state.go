package domain

import "time"

// SyncState is the crash-resumable progress of one account's sync.
type SyncState struct {
	AccountID           string     `json:"account_id" gorm:"primaryKey"`
	InitialSyncComplete bool       `json:"initial_sync_complete" gorm:"not null"`
	LastSyncPageToken   string     `json:"last_sync_page_token,omitempty"`
	LastSyncDate        *time.Time `json:"last_sync_date,omitempty"`
	SyncInProgress      bool       `json:"sync_in_progress" gorm:"not null"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
