package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/usemox/mox/internal/account/domain"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)
	UpdateProfile(ctx context.Context, account *domain.Account) error
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
	// AdvanceHistoryID moves the watermark forward only. It reports whether
	// the stored value changed.
	AdvanceHistoryID(ctx context.Context, id string, historyID uint64) (bool, error)
	Delete(ctx context.Context, id string) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// UpdateProfile writes name and credentials. The watermark is left alone.
func (r *accountRepository) UpdateProfile(ctx context.Context, account *domain.Account) error {
	account.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"name":          account.Name,
			"access_token":  account.AccessToken,
			"refresh_token": account.RefreshToken,
			"token_expiry":  account.TokenExpiry,
			"updated_at":    account.UpdatedAt,
		}).Error
}

func (r *accountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"updated_at":   time.Now(),
	}
	// Google only returns a refresh token on first consent.
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Updates(updates).Error
}

func (r *accountRepository) AdvanceHistoryID(ctx context.Context, id string, historyID uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND history_id < ?", id, historyID).
		Updates(map[string]interface{}{
			"history_id": historyID,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Account{}, "id = ?", id).Error
}
