package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/usemox/mox/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository stores FCM device tokens per account
type DeviceRepository interface {
	SaveToken(ctx context.Context, accountID, token, deviceInfo string) error
	GetTokensByAccountID(ctx context.Context, accountID string) ([]domain.DeviceToken, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteTokensByAccountID(ctx context.Context, accountID string) error
}

type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new instance of deviceRepository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

// SaveToken registers a token; a token seen before moves to the new account.
func (r *deviceRepository) SaveToken(ctx context.Context, accountID, token, deviceInfo string) error {
	now := time.Now()
	device := &domain.DeviceToken{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_id", "device_info", "updated_at"}),
	}).Create(device).Error
}

func (r *deviceRepository) GetTokensByAccountID(ctx context.Context, accountID string) ([]domain.DeviceToken, error) {
	var tokens []domain.DeviceToken
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *deviceRepository) DeleteToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&domain.DeviceToken{}).Error
}

func (r *deviceRepository) DeleteTokensByAccountID(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&domain.DeviceToken{}).Error
}
