// Package testutil builds throwaway stores for package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	accountdomain "github.com/usemox/mox/internal/account/domain"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/migrations"
	"github.com/usemox/mox/pkg/database"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database in the test's temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.NewSQLiteConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := migrations.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Email builds a message with a body in the inbox.
func Email(accountID, id, threadID string, date time.Time) *emaildomain.Email {
	return &emaildomain.Email{
		ID:        id,
		AccountID: accountID,
		ThreadID:  threadID,
		From:      "Alice <alice@example.com>",
		To:        "bob@example.com",
		Subject:   "Subject " + id,
		Snippet:   "snippet " + id,
		Date:      date,
		Unread:    true,
		Labels:    emaildomain.StringArray{"INBOX", "UNREAD"},
		Folder:    emaildomain.FolderInbox,
		Body: &emaildomain.EmailBody{
			EmailID: id,
			HTML:    "<p>Hello from " + id + "</p>",
			Plain:   "Hello from " + id,
		},
	}
}

// Account stores an account row with the given watermark.
func Account(t testing.TB, db *gorm.DB, id, address string, historyID uint64) *accountdomain.Account {
	t.Helper()
	acc := &accountdomain.Account{
		ID:           id,
		Email:        address,
		HistoryID:    historyID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  time.Now().Add(time.Hour),
	}
	if err := db.Create(acc).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}
