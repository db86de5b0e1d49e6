// Package migrations owns the schema of every persisted model.
package migrations

import (
	"fmt"

	accountdomain "github.com/usemox/mox/internal/account/domain"
	actiondomain "github.com/usemox/mox/internal/actionitem/domain"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	peopledomain "github.com/usemox/mox/internal/people/domain"
	"gorm.io/gorm"
)

// Models lists tables in dependency order.
func Models() []interface{} {
	return []interface{}{
		&accountdomain.Account{},
		&accountdomain.DeviceToken{},
		&emaildomain.Email{},
		&emaildomain.EmailBody{},
		&emaildomain.Attachment{},
		&emaildomain.SyncState{},
		&emaildomain.ThreadSummary{},
		&emaildomain.EmbeddingRecord{},
		&emaildomain.MiddlewareResult{},
		&actiondomain.ActionItem{},
		&peopledomain.Person{},
		&peopledomain.EmailAddress{},
	}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
