package repository

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid"
	"github.com/usemox/mox/internal/email/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MiddlewareResultRepository stores the output of extraction stages.
type MiddlewareResultRepository interface {
	// Save records a stage result; a rerun of the same stage on the same
	// email replaces the previous result.
	Save(ctx context.Context, middlewareID, emailID string, result []byte) error
	ListByEmail(ctx context.Context, emailID string) ([]domain.MiddlewareResult, error)
}

type middlewareResultRepository struct {
	db *gorm.DB
}

// NewMiddlewareResultRepository creates a new instance of middlewareResultRepository
func NewMiddlewareResultRepository(db *gorm.DB) MiddlewareResultRepository {
	return &middlewareResultRepository{db: db}
}

func (r *middlewareResultRepository) Save(ctx context.Context, middlewareID, emailID string, result []byte) error {
	now := time.Now()
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "middleware_id"}, {Name: "email_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"result", "updated_at"}),
	}).Create(&domain.MiddlewareResult{
		ID:           ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		MiddlewareID: middlewareID,
		EmailID:      emailID,
		Result:       domain.JSON(result),
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error
}

func (r *middlewareResultRepository) ListByEmail(ctx context.Context, emailID string) ([]domain.MiddlewareResult, error) {
	var results []domain.MiddlewareResult
	err := r.db.WithContext(ctx).Where("email_id = ?", emailID).Order("middleware_id ASC").Find(&results).Error
	return results, err
}
