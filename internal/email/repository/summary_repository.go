package repository

import (
	"context"
	"errors"
	"time"

	"github.com/usemox/mox/internal/email/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SummaryRepository caches AI summaries per account and thread
type SummaryRepository interface {
	GetSummary(ctx context.Context, accountID, threadID string) (*domain.ThreadSummary, error)
	// GetSummaries returns threadID -> summary for the cached threads of an account
	GetSummaries(ctx context.Context, accountID string, threadIDs []string) (map[string]string, error)
	SaveSummary(ctx context.Context, accountID, threadID, summary string) error
}

type summaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new instance of summaryRepository
func NewSummaryRepository(db *gorm.DB) SummaryRepository {
	return &summaryRepository{db: db}
}

func (r *summaryRepository) GetSummary(ctx context.Context, accountID, threadID string) (*domain.ThreadSummary, error) {
	var summary domain.ThreadSummary
	err := r.db.WithContext(ctx).Where("account_id = ? AND thread_id = ?", accountID, threadID).First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

func (r *summaryRepository) GetSummaries(ctx context.Context, accountID string, threadIDs []string) (map[string]string, error) {
	if len(threadIDs) == 0 {
		return map[string]string{}, nil
	}

	var summaries []domain.ThreadSummary
	if err := r.db.WithContext(ctx).Where("account_id = ? AND thread_id IN ?", accountID, threadIDs).Find(&summaries).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string, len(summaries))
	for _, s := range summaries {
		result[s.ThreadID] = s.Summary
	}
	return result, nil
}

func (r *summaryRepository) SaveSummary(ctx context.Context, accountID, threadID, summaryText string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "updated_at"}),
	}).Create(&domain.ThreadSummary{
		ThreadID:  threadID,
		AccountID: accountID,
		Summary:   summaryText,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}
