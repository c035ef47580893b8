package subscription

import "context"

// Repository provides persistence operations for subscriptions.
type Repository interface {
	// GetActive returns the newest ACTIVE subscription or repository.ErrNotFound.
	GetActive(ctx context.Context, tenantID string) (*Subscription, error)
	MarkExpired(ctx context.Context, id string) error
	// Settle moves sent messages from remaining to used, failing with
	// repository.ErrConflict when the plan is no longer active or short on quota.
	Settle(ctx context.Context, id string, sent int) error
}
