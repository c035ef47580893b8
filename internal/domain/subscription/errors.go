package subscription

import "errors"

var (
	// ErrNoSubscription indicates the tenant has no active subscription.
	ErrNoSubscription = errors.New("no active subscription")
	// ErrSubscriptionExpired indicates the newest active subscription is past its end date.
	ErrSubscriptionExpired = errors.New("subscription expired")
	// ErrInvalidInput indicates an invalid settle request.
	ErrInvalidInput = errors.New("invalid subscription input")
)
