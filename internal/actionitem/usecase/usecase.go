package usecase

import (
	"context"
	"time"

	"github.com/usemox/mox/internal/actionitem/domain"
)

// UpdateInput carries the fields a client may change. Nil means unchanged.
type UpdateInput struct {
	Description *string    `json:"description"`
	DueDate     *string    `json:"due_date"`
	Completed   *bool      `json:"completed"`
	ReminderAt  *time.Time `json:"reminder_at"`
}

// ActionItemUsecase defines the business operations on action items
type ActionItemUsecase interface {
	List(ctx context.Context, accountID string, completed *bool, limit, offset int) ([]*domain.ActionItem, int64, error)
	ListByEmail(ctx context.Context, accountID, emailID string) ([]*domain.ActionItem, error)
	Get(ctx context.Context, accountID, id string) (*domain.ActionItem, error)
	Update(ctx context.Context, accountID, id string, in UpdateInput) (*domain.ActionItem, error)
	Delete(ctx context.Context, accountID, id string) error
}
