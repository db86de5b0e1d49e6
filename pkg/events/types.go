package events

import "time"

type SyncKind string

const (
	SyncInitial     SyncKind = "initial"
	SyncIncremental SyncKind = "incremental"
)

type SyncStatus string

const (
	StatusStarted   SyncStatus = "started"
	StatusCompleted SyncStatus = "completed"
)

// SyncStatusEvent brackets every sync run. Completed is always sent, also
// after a failure, in which case Error is set.
type SyncStatusEvent struct {
	AccountID string     `json:"account_id"`
	Kind      SyncKind   `json:"kind"`
	Status    SyncStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	At        time.Time  `json:"at"`
}

// StateChangedEvent reports orchestrator state transitions.
type StateChangedEvent struct {
	AccountID string    `json:"account_id"`
	State     string    `json:"state"`
	Listening bool      `json:"listening"`
	At        time.Time `json:"at"`
}

type EmailPreview struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Snippet  string    `json:"snippet"`
	Date     time.Time `json:"date"`
	Unread   bool      `json:"unread"`
}

// NewEmailsEvent lists messages that were not stored before.
type NewEmailsEvent struct {
	AccountID string         `json:"account_id"`
	Emails    []EmailPreview `json:"emails"`
}

type SummaryReadyEvent struct {
	AccountID string `json:"account_id"`
	ThreadID  string `json:"thread_id"`
	Summary   string `json:"summary"`
}

var (
	SyncStatusTopic   = NewTopic[SyncStatusEvent]("sync_status")
	StateChangedTopic = NewTopic[StateChangedEvent]("sync_state")
	NewEmailsTopic    = NewTopic[NewEmailsEvent]("new_emails")
	SummaryReadyTopic = NewTopic[SummaryReadyEvent]("summary_ready")
)
