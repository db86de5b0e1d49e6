package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/usemox/mox/internal/actionitem/domain"
	"github.com/usemox/mox/internal/actionitem/repository"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	emailrepo "github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/internal/testutil"
)

func setup(t *testing.T) (ActionItemUsecase, repository.ActionItemRepository) {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	_, err := emailrepo.NewEmailRepository(db).InsertEmails(ctx, "acc", []*emaildomain.Email{
		testutil.Email("acc", "m1", "t1", time.Now()),
	}, "")
	be.Err(t, err, nil)

	repo := repository.NewActionItemRepository(db)
	be.Err(t, repo.ReplaceForEmail(ctx, "acc", "m1", []*domain.ActionItem{{ID: "a1", Description: "Send report"}}), nil)
	return NewActionItemUsecase(repo), repo
}

func TestGetChecksOwnership(t *testing.T) {
	u, _ := setup(t)
	ctx := context.Background()

	_, err := u.Get(ctx, "other", "a1")
	be.Err(t, err, domain.ErrForbidden)

	_, err = u.Get(ctx, "acc", "missing")
	be.Err(t, err, domain.ErrActionItemNotFound)
}

func TestUpdateAppliesFields(t *testing.T) {
	u, _ := setup(t)
	ctx := context.Background()

	done := true
	due := "Monday"
	remind := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	item, err := u.Update(ctx, "acc", "a1", UpdateInput{Completed: &done, DueDate: &due, ReminderAt: &remind})
	be.Err(t, err, nil)
	be.True(t, item.Completed)
	be.Equal(t, *item.DueDate, "Monday")

	got, err := u.Get(ctx, "acc", "a1")
	be.Err(t, err, nil)
	be.True(t, got.Completed)
	be.Equal(t, got.Description, "Send report")
	be.True(t, !got.ReminderSent)

	empty := ""
	item, err = u.Update(ctx, "acc", "a1", UpdateInput{DueDate: &empty})
	be.Err(t, err, nil)
	be.True(t, item.DueDate == nil)
}

func TestDeleteRequiresOwner(t *testing.T) {
	u, _ := setup(t)
	ctx := context.Background()

	be.Err(t, u.Delete(ctx, "other", "a1"), domain.ErrForbidden)
	be.Err(t, u.Delete(ctx, "acc", "a1"), nil)
	_, err := u.Get(ctx, "acc", "a1")
	be.Err(t, err, domain.ErrActionItemNotFound)
}

func TestListByEmailFiltersAccount(t *testing.T) {
	u, _ := setup(t)
	items, err := u.ListByEmail(context.Background(), "other", "m1")
	be.Err(t, err, nil)
	be.Equal(t, len(items), 0)
}
