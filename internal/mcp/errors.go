package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/session"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QuotaDetails carries the numbers behind a quota or length rejection.
type QuotaDetails struct {
	Limit  int `json:"limit"`
	Actual int `json:"actual"`
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var pe *dispatch.PreconditionError
	if errors.As(err, &pe) {
		return mapPrecondition(pe)
	}

	switch {
	case errors.Is(err, dispatch.ErrEmptyBatch):
		return &APIError{Code: "EMPTY_BATCH", Message: err.Error(), RecoveryHint: "Pass at least one message"}
	case errors.Is(err, session.ErrInvalidPhone):
		return &APIError{Code: "INVALID_PHONE", Message: err.Error(), RecoveryHint: "Use the full number with country code"}
	case errors.Is(err, session.ErrAlreadyConnected):
		return &APIError{Code: "ALREADY_CONNECTED", Message: err.Error(), RecoveryHint: "Call disconnect_session to pair another phone"}
	case errors.Is(err, session.ErrArtifactNotReady), errors.Is(err, session.ErrPairingNotReady):
		return &APIError{Code: "PAIRING_NOT_READY", Message: err.Error(), RecoveryHint: "Wait a few seconds and retry"}
	case errors.Is(err, session.ErrPairingFailed):
		return &APIError{Code: "PAIRING_FAILED", Message: err.Error(), RecoveryHint: "Check the phone number and retry"}
	case errors.Is(err, session.ErrClientUnavailable):
		return &APIError{Code: "CLIENT_UNAVAILABLE", Message: err.Error(), RecoveryHint: "Retry initialize_session later"}
	default:
		return nil
	}
}

func mapPrecondition(pe *dispatch.PreconditionError) *APIError {
	e := &APIError{Message: pe.Error()}
	switch pe.Kind {
	case dispatch.ErrNotConnected:
		e.Code, e.RecoveryHint = "NOT_CONNECTED", "Pair a phone with initialize_session first"
	case dispatch.ErrConnectionInactive:
		e.Code, e.RecoveryHint = "CONNECTION_INACTIVE", "Check get_status and re-pair if needed"
	case dispatch.ErrNoSubscription:
		e.Code = "NO_SUBSCRIPTION"
	case dispatch.ErrSubscriptionExpired:
		e.Code = "SUBSCRIPTION_EXPIRED"
	case dispatch.ErrInsufficientQuota:
		e.Code, e.RecoveryHint = "INSUFFICIENT_QUOTA", "Send fewer messages"
		e.Details = QuotaDetails{Limit: pe.Limit, Actual: pe.Actual}
	case dispatch.ErrMessageTooLong:
		e.Code, e.RecoveryHint = "MESSAGE_TOO_LONG", "Shorten the message"
		e.Details = QuotaDetails{Limit: pe.Limit, Actual: pe.Actual}
	default:
		e.Code = "PRECONDITION_FAILED"
	}
	return e
}

// toolError converts a service error into the error returned from a tool handler.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
