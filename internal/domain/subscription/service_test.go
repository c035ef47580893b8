package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/rpggio/sendgate/internal/repository"
	"github.com/rpggio/sendgate/internal/repository/mocks"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionService_CurrentActive(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	sub := &subscription.Subscription{
		ID:                "sub1",
		TenantID:          tenantID,
		MessagesLimit:     100,
		MessagesRemaining: 100,
		CharactersLimit:   160,
		EndDate:           time.Now().Add(24 * time.Hour),
		Status:            subscription.StatusActive,
	}

	repo := &mocks.SubscriptionRepository{}
	repo.On("GetActive", ctx, tenantID).Return(sub, nil)

	svc := subscription.NewService(repo, nil)
	got, err := svc.Current(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, "sub1", got.ID)
	repo.AssertNotCalled(t, "MarkExpired", ctx, "sub1")
}

func TestSubscriptionService_CurrentMissing(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.SubscriptionRepository{}
	repo.On("GetActive", ctx, "tenant1").Return((*subscription.Subscription)(nil), repository.ErrNotFound)

	svc := subscription.NewService(repo, nil)
	_, err := svc.Current(ctx, "tenant1")
	require.ErrorIs(t, err, subscription.ErrNoSubscription)
}

func TestSubscriptionService_CurrentExpiresLazily(t *testing.T) {
	ctx := context.Background()

	sub := &subscription.Subscription{
		ID:      "sub1",
		EndDate: time.Now().Add(-time.Minute),
		Status:  subscription.StatusActive,
	}

	repo := &mocks.SubscriptionRepository{}
	repo.On("GetActive", ctx, "tenant1").Return(sub, nil)
	repo.On("MarkExpired", ctx, "sub1").Return(nil)

	svc := subscription.NewService(repo, nil)
	_, err := svc.Current(ctx, "tenant1")
	require.ErrorIs(t, err, subscription.ErrSubscriptionExpired)
	repo.AssertExpectations(t)
}

func TestSubscriptionService_CurrentExpiredEvenIfMarkFails(t *testing.T) {
	ctx := context.Background()

	sub := &subscription.Subscription{ID: "sub1", EndDate: time.Now().Add(-time.Hour)}

	repo := &mocks.SubscriptionRepository{}
	repo.On("GetActive", ctx, "tenant1").Return(sub, nil)
	repo.On("MarkExpired", ctx, "sub1").Return(errors.New("disk full"))

	svc := subscription.NewService(repo, nil)
	_, err := svc.Current(ctx, "tenant1")
	require.ErrorIs(t, err, subscription.ErrSubscriptionExpired)
}

func TestSubscriptionService_Settle(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.SubscriptionRepository{}
	repo.On("Settle", ctx, "sub1", 3).Return(nil)
	repo.On("Settle", ctx, "sub2", 1).Return(repository.ErrConflict)

	svc := subscription.NewService(repo, nil)
	require.NoError(t, svc.Settle(ctx, "sub1", 3))
	require.NoError(t, svc.Settle(ctx, "sub1", 0))
	require.ErrorIs(t, svc.Settle(ctx, "sub2", 1), repository.ErrConflict)
	require.ErrorIs(t, svc.Settle(ctx, "sub1", -1), subscription.ErrInvalidInput)
	repo.AssertNumberOfCalls(t, "Settle", 2)
}
