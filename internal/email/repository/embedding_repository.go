package repository

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/usemox/mox/internal/email/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingRepository stores email vectors and answers nearest-neighbor
// queries over them.
type EmbeddingRepository interface {
	Upsert(ctx context.Context, accountID, emailID string, vector []float32) error
	Nearest(ctx context.Context, accountID string, query []float32, k int) ([]domain.Neighbor, error)
	Delete(ctx context.Context, emailIDs []string) error
	Count(ctx context.Context, accountID string) (int64, error)
}

type embeddingRepository struct {
	db *gorm.DB
}

// NewEmbeddingRepository creates a new instance of embeddingRepository
func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

func (r *embeddingRepository) Upsert(ctx context.Context, accountID, emailID string, vector []float32) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vector", "dimensions", "updated_at"}),
	}).Create(&domain.EmbeddingRecord{
		EmailID:    emailID,
		AccountID:  accountID,
		Vector:     domain.Vector(vector),
		Dimensions: len(vector),
		UpdatedAt:  time.Now(),
	}).Error
}

// Nearest scans the account's vectors and returns the k closest by cosine
// distance. Vectors of a different dimension than query are ignored.
func (r *embeddingRepository) Nearest(ctx context.Context, accountID string, query []float32, k int) ([]domain.Neighbor, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := r.db.WithContext(ctx).Model(&domain.EmbeddingRecord{}).
		Select("email_id", "vector").
		Where("account_id = ? AND dimensions = ?", accountID, len(query)).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.Neighbor
	for rows.Next() {
		var (
			id  string
			vec domain.Vector
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, err
		}
		d, ok := CosineDistance(query, vec)
		if !ok {
			continue
		}
		hits = append(hits, domain.Neighbor{EmailID: id, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(hits, func(a, b domain.Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (r *embeddingRepository) Delete(ctx context.Context, emailIDs []string) error {
	if len(emailIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("email_id IN ?", emailIDs).Delete(&domain.EmbeddingRecord{}).Error
}

func (r *embeddingRepository) Count(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.EmbeddingRecord{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

// CosineDistance returns 1 - cos(a, b). ok is false when the lengths differ
// or either vector is all zeros.
func CosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
}
