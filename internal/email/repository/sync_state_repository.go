package repository

import (
	"context"
	"errors"
	"time"

	"github.com/usemox/mox/internal/email/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncStateRepository reads and upserts per-account sync progress.
type SyncStateRepository interface {
	Get(ctx context.Context, accountID string) (*domain.SyncState, error)
	SetInProgress(ctx context.Context, accountID string, inProgress bool) error
	// ResetInProgress clears the flag without creating a row.
	ResetInProgress(ctx context.Context, accountID string) error
	SavePageToken(ctx context.Context, accountID, token string) error
	MarkInitialComplete(ctx context.Context, accountID string, at time.Time) error
}

type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository creates a new instance of syncStateRepository
func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) Get(ctx context.Context, accountID string) (*domain.SyncState, error) {
	var state domain.SyncState
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// upsert inserts state or, when the account already has a row, updates
// only the given columns.
func (r *syncStateRepository) upsert(ctx context.Context, state *domain.SyncState, columns ...string) error {
	state.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(state).Error
}

func (r *syncStateRepository) SetInProgress(ctx context.Context, accountID string, inProgress bool) error {
	return r.upsert(ctx, &domain.SyncState{AccountID: accountID, SyncInProgress: inProgress}, "sync_in_progress")
}

func (r *syncStateRepository) ResetInProgress(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Model(&domain.SyncState{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"sync_in_progress": false,
			"updated_at":       time.Now(),
		}).Error
}

func (r *syncStateRepository) SavePageToken(ctx context.Context, accountID, token string) error {
	return r.upsert(ctx, &domain.SyncState{AccountID: accountID, LastSyncPageToken: token}, "last_sync_page_token")
}

func (r *syncStateRepository) MarkInitialComplete(ctx context.Context, accountID string, at time.Time) error {
	return r.upsert(ctx, &domain.SyncState{
		AccountID:           accountID,
		InitialSyncComplete: true,
		SyncInProgress:      false,
		LastSyncDate:        &at,
		LastSyncPageToken:   "",
	}, "initial_sync_complete", "sync_in_progress", "last_sync_date", "last_sync_page_token")
}
