package usecase

import (
	"context"
	"strings"

	"github.com/usemox/mox/internal/actionitem/domain"
	"github.com/usemox/mox/internal/actionitem/repository"
)

type actionItemUsecase struct {
	repo repository.ActionItemRepository
}

func NewActionItemUsecase(repo repository.ActionItemRepository) ActionItemUsecase {
	return &actionItemUsecase{repo: repo}
}

const maxLimit = 100

func (u *actionItemUsecase) List(ctx context.Context, accountID string, completed *bool, limit, offset int) ([]*domain.ActionItem, int64, error) {
	if limit <= 0 || limit > maxLimit {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return u.repo.List(ctx, accountID, completed, limit, offset)
}

func (u *actionItemUsecase) ListByEmail(ctx context.Context, accountID, emailID string) ([]*domain.ActionItem, error) {
	items, err := u.repo.ListByEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}
	owned := items[:0]
	for _, item := range items {
		if item.AccountID == accountID {
			owned = append(owned, item)
		}
	}
	return owned, nil
}

func (u *actionItemUsecase) Get(ctx context.Context, accountID, id string) (*domain.ActionItem, error) {
	item, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrActionItemNotFound
	}
	if item.AccountID != accountID {
		return nil, domain.ErrForbidden
	}
	return item, nil
}

func (u *actionItemUsecase) Update(ctx context.Context, accountID, id string, in UpdateInput) (*domain.ActionItem, error) {
	item, err := u.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	if in.Description != nil {
		if d := strings.TrimSpace(*in.Description); d != "" {
			item.Description = d
		}
	}
	if in.DueDate != nil {
		if *in.DueDate == "" {
			item.DueDate = nil
		} else {
			item.DueDate = in.DueDate
		}
	}
	if in.Completed != nil {
		item.Completed = *in.Completed
	}
	if in.ReminderAt != nil {
		item.ReminderAt = in.ReminderAt
		item.ReminderSent = false
	}

	if err := u.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (u *actionItemUsecase) Delete(ctx context.Context, accountID, id string) error {
	if _, err := u.Get(ctx, accountID, id); err != nil {
		return err
	}
	return u.repo.Delete(ctx, id)
}
