package repository

import (
	"context"
	"time"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

// SubscriptionRepository handles weekly digest subscription persistence.
// Subscriptions are soft-deleted: Deactivate clears the active flag and the
// row is kept so past delivery history stays attributable.
type SubscriptionRepository interface {
	// Create inserts a new active subscription for the given keyword and
	// recipient. The keyword is normalized before storage.
	// Returns domain.ErrAlreadyExists if an active subscription for the same
	// (keyword, email) pair already exists.
	// Returns domain.ErrInvalidInput if the keyword or email is invalid.
	Create(ctx context.Context, keyword, email string) (*domain.Subscription, error)

	// GetByID retrieves a subscription by its ID, active or not.
	// Returns domain.ErrNotFound if no such subscription exists.
	GetByID(ctx context.Context, id int64) (*domain.Subscription, error)

	// ListActive retrieves all active subscriptions ordered by creation time.
	ListActive(ctx context.Context) ([]*domain.Subscription, error)

	// Deactivate clears the active flag on a subscription. Deactivating an
	// already-inactive subscription is a no-op.
	// Returns domain.ErrNotFound if no such subscription exists.
	Deactivate(ctx context.Context, id int64) error

	// MarkSent records the time of the latest successful delivery.
	// Last writer wins; callers invoke this only after a send succeeded.
	// Returns domain.ErrNotFound if no such subscription exists.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
}
