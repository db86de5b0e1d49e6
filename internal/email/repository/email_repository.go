package repository

import (
	"context"
	"errors"
	"time"

	"github.com/usemox/mox/internal/email/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmailRepository persists mirrored messages.
type EmailRepository interface {
	// InsertEmails upserts emails, bodies and attachments in one transaction
	// and returns the ids that were not stored before. A non-empty pageToken
	// is checkpointed into the account's sync state in the same transaction.
	InsertEmails(ctx context.Context, accountID string, emails []*domain.Email, pageToken string) ([]string, error)
	DeleteEmails(ctx context.Context, ids []string) error
	DeleteByAccount(ctx context.Context, accountID string) error

	FindByID(ctx context.Context, id string) (*domain.Email, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Email, error)
	List(ctx context.Context, accountID string, folder domain.Folder, limit, offset int) ([]*domain.Email, int64, error)
	GetThread(ctx context.Context, accountID, threadID string) ([]*domain.Email, error)
	NewestEmailDate(ctx context.Context, accountID string) (*time.Time, error)
	MaxHistoryID(ctx context.Context, accountID string) (uint64, error)
	UnreadCount(ctx context.Context, accountID string) (int64, error)
	Count(ctx context.Context, accountID string) (int64, error)

	MarkAsRead(ctx context.Context, accountID string, ids []string) error
	ArchiveThreads(ctx context.Context, accountID string, threadIDs []string) error
	UpdateLabels(ctx context.Context, id string, labels domain.StringArray) error

	GetAttachment(ctx context.Context, emailID, partID string) (*domain.Attachment, error)
	GetAttachmentByContentID(ctx context.Context, accountID, contentID string) (*domain.Attachment, error)
	SaveAttachmentData(ctx context.Context, emailID, partID string, data []byte) error
}

type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new instance of emailRepository
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) InsertEmails(ctx context.Context, accountID string, emails []*domain.Email, pageToken string) ([]string, error) {
	if len(emails) == 0 && pageToken == "" {
		return nil, nil
	}

	now := time.Now()
	seen := make(map[string]struct{}, len(emails))
	threadSet := make(map[string]struct{})
	var (
		ids         []string
		threadIDs   []string
		rows        []domain.Email
		bodies      []domain.EmailBody
		attachments []domain.Attachment
	)

	for _, e := range emails {
		if e == nil || e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		ids = append(ids, e.ID)

		if _, ok := threadSet[e.ThreadID]; !ok && e.ThreadID != "" {
			threadSet[e.ThreadID] = struct{}{}
			threadIDs = append(threadIDs, e.ThreadID)
		}

		row := *e
		row.AccountID = accountID
		row.SyncedAt = now
		row.Body = nil
		row.Attachments = nil
		if row.Labels == nil {
			row.Labels = domain.StringArray{}
		}
		rows = append(rows, row)

		if e.Body != nil {
			body := *e.Body
			body.EmailID = e.ID
			bodies = append(bodies, body)
		}
		for _, a := range e.Attachments {
			a.EmailID = e.ID
			attachments = append(attachments, a)
		}
	}

	var newIDs []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			// A new message changes the meaning of its thread.
			if len(threadIDs) > 0 {
				if err := tx.Where("account_id = ? AND thread_id IN ?", accountID, threadIDs).Delete(&domain.ThreadSummary{}).Error; err != nil {
					return err
				}
			}

			var existing []string
			if err := tx.Model(&domain.Email{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
				return err
			}

			if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"synced_at"}),
			}).Create(&rows).Error; err != nil {
				return err
			}

			if len(bodies) > 0 {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&bodies).Error; err != nil {
					return err
				}
			}
			if len(attachments) > 0 {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&attachments).Error; err != nil {
					return err
				}
			}

			known := make(map[string]struct{}, len(existing))
			for _, id := range existing {
				known[id] = struct{}{}
			}
			for _, id := range ids {
				if _, ok := known[id]; !ok {
					newIDs = append(newIDs, id)
				}
			}
		}

		if pageToken != "" {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"last_sync_page_token", "updated_at"}),
			}).Create(&domain.SyncState{
				AccountID:         accountID,
				LastSyncPageToken: pageToken,
				UpdatedAt:         now,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newIDs, nil
}

func (r *emailRepository) DeleteEmails(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Email{}).Error
}

func (r *emailRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&domain.ThreadSummary{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&domain.SyncState{}).Error; err != nil {
			return err
		}
		return tx.Where("account_id = ?", accountID).Delete(&domain.Email{}).Error
	})
}

func withoutAttachmentData(db *gorm.DB) *gorm.DB {
	return db.Select("email_id", "part_id", "attachment_id", "mime_type", "filename", "content_id", "size")
}

func (r *emailRepository) FindByID(ctx context.Context, id string) (*domain.Email, error) {
	var email domain.Email
	err := r.db.WithContext(ctx).
		Preload("Body").
		Preload("Attachments", withoutAttachmentData).
		Where("id = ?", id).First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}

// FindByIDs returns the stored emails with bodies; missing ids are skipped.
func (r *emailRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Email, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var emails []*domain.Email
	err := r.db.WithContext(ctx).Preload("Body").Where("id IN ?", ids).Find(&emails).Error
	return emails, err
}

func (r *emailRepository) List(ctx context.Context, accountID string, folder domain.Folder, limit, offset int) ([]*domain.Email, int64, error) {
	var (
		emails []*domain.Email
		total  int64
	)

	query := r.db.WithContext(ctx).Model(&domain.Email{}).Where("account_id = ?", accountID)
	if folder != "" {
		query = query.Where("folder = ?", folder)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("date DESC").Limit(limit).Offset(offset).Find(&emails).Error
	return emails, total, err
}

func (r *emailRepository) GetThread(ctx context.Context, accountID, threadID string) ([]*domain.Email, error) {
	var emails []*domain.Email
	err := r.db.WithContext(ctx).
		Preload("Body").
		Preload("Attachments", withoutAttachmentData).
		Where("account_id = ? AND thread_id = ?", accountID, threadID).
		Order("date ASC").
		Find(&emails).Error
	return emails, err
}

// NewestEmailDate returns nil when the account has no stored mail.
func (r *emailRepository) NewestEmailDate(ctx context.Context, accountID string) (*time.Time, error) {
	var email domain.Email
	err := r.db.WithContext(ctx).Select("date").
		Where("account_id = ?", accountID).
		Order("date DESC").
		Limit(1).
		Take(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email.Date, nil
}

func (r *emailRepository) MaxHistoryID(ctx context.Context, accountID string) (uint64, error) {
	var max uint64
	err := r.db.WithContext(ctx).Model(&domain.Email{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(MAX(history_id), 0)").
		Scan(&max).Error
	return max, err
}

func (r *emailRepository) UnreadCount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Email{}).
		Where("account_id = ? AND unread = ? AND folder = ?", accountID, true, domain.FolderInbox).
		Count(&count).Error
	return count, err
}

func (r *emailRepository) Count(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Email{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

func (r *emailRepository) MarkAsRead(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Email{}).
		Where("account_id = ? AND id IN ?", accountID, ids).
		Update("unread", false).Error
}

func (r *emailRepository) ArchiveThreads(ctx context.Context, accountID string, threadIDs []string) error {
	if len(threadIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Email{}).
		Where("account_id = ? AND thread_id IN ?", accountID, threadIDs).
		Update("folder", domain.FolderArchive).Error
}

// UpdateLabels rewrites the label set and refolders the message to match.
func (r *emailRepository) UpdateLabels(ctx context.Context, id string, labels domain.StringArray) error {
	return r.db.WithContext(ctx).Model(&domain.Email{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"labels": labels,
			"folder": domain.FolderFromLabels(labels),
			"unread": labels.Contains("UNREAD"),
		}).Error
}

func (r *emailRepository) GetAttachment(ctx context.Context, emailID, partID string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := r.db.WithContext(ctx).Where("email_id = ? AND part_id = ?", emailID, partID).First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &att, nil
}

func (r *emailRepository) GetAttachmentByContentID(ctx context.Context, accountID, contentID string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := r.db.WithContext(ctx).
		Joins("JOIN emails ON emails.id = email_attachments.email_id").
		Where("emails.account_id = ? AND email_attachments.content_id = ?", accountID, contentID).
		First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &att, nil
}

func (r *emailRepository) SaveAttachmentData(ctx context.Context, emailID, partID string, data []byte) error {
	return r.db.WithContext(ctx).Model(&domain.Attachment{}).
		Where("email_id = ? AND part_id = ?", emailID, partID).
		Update("data", data).Error
}
