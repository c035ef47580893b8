package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/rpggio/sendgate/internal/repository"
)

// SubscriptionRepository implements subscription.Repository for SQLite
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, tenant_id, plan_name, messages_limit, messages_used, messages_remaining,
	characters_limit, start_date, end_date, status, created_at, updated_at
`

// Create inserts a subscription
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.TenantID,
		sub.PlanName,
		sub.MessagesLimit,
		sub.MessagesUsed,
		sub.MessagesRemaining,
		sub.CharactersLimit,
		sub.StartDate.UTC(),
		sub.EndDate.UTC(),
		sub.Status,
		sub.CreatedAt.UTC(),
		sub.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// GetActive retrieves the tenant's newest ACTIVE subscription
func (r *SubscriptionRepository) GetActive(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = ? AND status = 'ACTIVE'
		ORDER BY created_at DESC
		LIMIT 1
	`

	var sub subscription.Subscription
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&sub.ID,
		&sub.TenantID,
		&sub.PlanName,
		&sub.MessagesLimit,
		&sub.MessagesUsed,
		&sub.MessagesRemaining,
		&sub.CharactersLimit,
		&sub.StartDate,
		&sub.EndDate,
		&sub.Status,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}

	return &sub, nil
}

// MarkExpired flips an ACTIVE subscription to EXPIRED
func (r *SubscriptionRepository) MarkExpired(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'EXPIRED', updated_at = ?
		WHERE id = ? AND status = 'ACTIVE'
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to expire subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Settle charges sent messages in one conditional update so concurrent settles cannot overdraw
func (r *SubscriptionRepository) Settle(ctx context.Context, id string, sent int) error {
	if sent <= 0 {
		return repository.ErrInvalidInput
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET messages_used = messages_used + ?,
			messages_remaining = messages_remaining - ?,
			updated_at = ?
		WHERE id = ? AND status = 'ACTIVE' AND messages_remaining >= ?
	`, sent, sent, time.Now().UTC(), id, sent)
	if err != nil {
		return fmt.Errorf("failed to settle subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrConflict
	}

	return nil
}
