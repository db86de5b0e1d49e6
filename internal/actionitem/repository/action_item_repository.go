package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/usemox/mox/internal/actionitem/domain"
)

// ActionItemRepository defines data access for extracted action items
type ActionItemRepository interface {
	// ReplaceForEmail swaps the open items of an email for items in one
	// transaction. Completed items are kept.
	ReplaceForEmail(ctx context.Context, accountID, emailID string, items []*domain.ActionItem) error
	FindByID(ctx context.Context, id string) (*domain.ActionItem, error)
	// List returns items of an account, open ones with a due date first.
	List(ctx context.Context, accountID string, completed *bool, limit, offset int) ([]*domain.ActionItem, int64, error)
	ListByEmail(ctx context.Context, emailID string) ([]*domain.ActionItem, error)
	Update(ctx context.Context, item *domain.ActionItem) error
	Delete(ctx context.Context, id string) error
	// FindPendingReminders returns open items whose reminder is due and unsent.
	FindPendingReminders(ctx context.Context, now time.Time) ([]*domain.ActionItem, error)
	MarkReminderSent(ctx context.Context, id string) error
}

type actionItemRepository struct {
	db *gorm.DB
}

func NewActionItemRepository(db *gorm.DB) ActionItemRepository {
	return &actionItemRepository{db: db}
}

func (r *actionItemRepository) ReplaceForEmail(ctx context.Context, accountID, emailID string, items []*domain.ActionItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email_id = ? AND completed = ?", emailID, false).
			Delete(&domain.ActionItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for _, item := range items {
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.AccountID = accountID
			item.EmailID = emailID
		}
		return tx.Omit(clause.Associations).Create(&items).Error
	})
}

func (r *actionItemRepository) FindByID(ctx context.Context, id string) (*domain.ActionItem, error) {
	var item domain.ActionItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *actionItemRepository) List(ctx context.Context, accountID string, completed *bool, limit, offset int) ([]*domain.ActionItem, int64, error) {
	var items []*domain.ActionItem
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.ActionItem{}).Where("account_id = ?", accountID)
	if completed != nil {
		query = query.Where("completed = ?", *completed)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("completed ASC, CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, created_at DESC").
		Limit(limit).Offset(offset).Find(&items).Error
	return items, total, err
}

func (r *actionItemRepository) ListByEmail(ctx context.Context, emailID string) ([]*domain.ActionItem, error) {
	var items []*domain.ActionItem
	err := r.db.WithContext(ctx).Where("email_id = ?", emailID).Order("created_at ASC").Find(&items).Error
	return items, err
}

func (r *actionItemRepository) Update(ctx context.Context, item *domain.ActionItem) error {
	item.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(item).Error
}

func (r *actionItemRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.ActionItem{}, "id = ?", id).Error
}

func (r *actionItemRepository) FindPendingReminders(ctx context.Context, now time.Time) ([]*domain.ActionItem, error) {
	var items []*domain.ActionItem
	err := r.db.WithContext(ctx).
		Where("reminder_at <= ? AND reminder_sent = ? AND completed = ?", now, false, false).
		Find(&items).Error
	return items, err
}

func (r *actionItemRepository) MarkReminderSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.ActionItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"reminder_sent": true,
			"updated_at":    time.Now(),
		}).Error
}
