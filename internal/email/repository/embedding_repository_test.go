package repository

import (
	"context"
	"math"
	"testing"

	"github.com/nalgeon/be"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/testutil"
)

func TestCosineDistance(t *testing.T) {
	d, ok := CosineDistance([]float32{1, 0}, []float32{1, 0})
	be.True(t, ok)
	be.True(t, math.Abs(d) < 1e-9)

	d, ok = CosineDistance([]float32{1, 0}, []float32{0, 1})
	be.True(t, ok)
	be.True(t, math.Abs(d-1) < 1e-9)

	_, ok = CosineDistance([]float32{1, 0}, []float32{1, 0, 0})
	be.True(t, !ok)

	_, ok = CosineDistance([]float32{0, 0}, []float32{1, 0})
	be.True(t, !ok)
}

func TestNearestRanksByDistance(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	emails := NewEmailRepository(db)
	repo := NewEmbeddingRepository(db)

	_, err := emails.InsertEmails(ctx, "acc", []*domain.Email{
		testutil.Email("acc", "near", "t1", base),
		testutil.Email("acc", "mid", "t2", base),
		testutil.Email("acc", "far", "t3", base),
		testutil.Email("acc", "short", "t4", base),
	}, "")
	be.Err(t, err, nil)
	_, err = emails.InsertEmails(ctx, "other", []*domain.Email{testutil.Email("other", "foreign", "t5", base)}, "")
	be.Err(t, err, nil)

	be.Err(t, repo.Upsert(ctx, "acc", "far", []float32{0, 1, 0}), nil)
	be.Err(t, repo.Upsert(ctx, "acc", "near", []float32{1, 0.1, 0}), nil)
	be.Err(t, repo.Upsert(ctx, "acc", "mid", []float32{1, 1, 0}), nil)
	be.Err(t, repo.Upsert(ctx, "acc", "short", []float32{1, 0}), nil)
	be.Err(t, repo.Upsert(ctx, "other", "foreign", []float32{1, 0, 0}), nil)

	hits, err := repo.Nearest(ctx, "acc", []float32{1, 0, 0}, 2)
	be.Err(t, err, nil)
	be.Equal(t, len(hits), 2)
	be.Equal(t, hits[0].EmailID, "near")
	be.Equal(t, hits[1].EmailID, "mid")
}

func TestEmbeddingUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	emails := NewEmailRepository(db)
	repo := NewEmbeddingRepository(db)

	_, err := emails.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)}, "")
	be.Err(t, err, nil)

	be.Err(t, repo.Upsert(ctx, "acc", "m1", []float32{0, 1}), nil)
	be.Err(t, repo.Upsert(ctx, "acc", "m1", []float32{1, 0}), nil)

	n, err := repo.Count(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(1))

	hits, err := repo.Nearest(ctx, "acc", []float32{1, 0}, 5)
	be.Err(t, err, nil)
	be.Equal(t, len(hits), 1)
	be.True(t, hits[0].Distance < 1e-9)
}
