package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpggio/sendgate/internal/repository"
)

// Service handles subscription reads and quota settlement.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new subscription service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Current returns the tenant's newest active subscription, expiring it first when its end date has passed.
func (s *Service) Current(ctx context.Context, tenantID string) (*Subscription, error) {
	sub, err := s.repo.GetActive(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("getting active subscription: %w", err)
	}

	if sub.ExpiredAt(s.now()) {
		if err := s.repo.MarkExpired(ctx, sub.ID); err != nil {
			s.logger.Warn("marking subscription expired failed", "tenant_id", tenantID, "subscription_id", sub.ID, "error", err)
		}
		return nil, ErrSubscriptionExpired
	}
	return sub, nil
}

// Settle charges sent messages against the subscription.
func (s *Service) Settle(ctx context.Context, id string, sent int) error {
	if sent < 0 || id == "" {
		return ErrInvalidInput
	}
	if sent == 0 {
		return nil
	}
	if err := s.repo.Settle(ctx, id, sent); err != nil {
		return fmt.Errorf("settling subscription: %w", err)
	}
	return nil
}
