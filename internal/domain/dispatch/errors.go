package dispatch

import (
	"errors"
	"fmt"
)

// Precondition kinds. A *PreconditionError matches its kind with errors.Is.
var (
	ErrNotConnected        = errors.New("whatsapp is not connected")
	ErrNoSubscription      = errors.New("no active subscription")
	ErrSubscriptionExpired = errors.New("subscription has expired")
	ErrInsufficientQuota   = errors.New("insufficient message quota")
	ErrMessageTooLong      = errors.New("message too long")
	ErrConnectionInactive  = errors.New("whatsapp connection is not active")
)

// ErrEmptyBatch is returned when sendBulk is called with no messages.
var ErrEmptyBatch = errors.New("no messages to send")

// PreconditionError reports a failed check that aborted a batch before any send.
type PreconditionError struct {
	Kind    error
	Limit   int
	Actual  int
	Message string
}

func (e *PreconditionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *PreconditionError) Unwrap() error {
	return e.Kind
}

func precondition(kind error) *PreconditionError {
	return &PreconditionError{Kind: kind}
}

func insufficientQuota(remaining, requested int) *PreconditionError {
	return &PreconditionError{
		Kind:    ErrInsufficientQuota,
		Limit:   remaining,
		Actual:  requested,
		Message: fmt.Sprintf("You only have %d messages remaining, but you're trying to send %d messages", remaining, requested),
	}
}

func messageTooLong(limit, length int) *PreconditionError {
	return &PreconditionError{
		Kind:    ErrMessageTooLong,
		Limit:   limit,
		Actual:  length,
		Message: fmt.Sprintf("Message is too long. Maximum %d characters allowed, but your message has %d characters.", limit, length),
	}
}
