package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rpggio/sendgate/internal/cache"
	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
)

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
	Actual *int   `json:"actual,omitempty"`
}

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNotConnected),
		errors.Is(err, dispatch.ErrConnectionInactive),
		errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrPairingNotReady),
		errors.Is(err, message.ErrContactExists):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrNoSubscription),
		errors.Is(err, dispatch.ErrSubscriptionExpired),
		errors.Is(err, dispatch.ErrInsufficientQuota):
		return http.StatusPaymentRequired
	case errors.Is(err, dispatch.ErrMessageTooLong),
		errors.Is(err, dispatch.ErrEmptyBatch),
		errors.Is(err, session.ErrInvalidPhone),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, message.ErrInvalidInput),
		errors.Is(err, subscription.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, subscription.ErrNoSubscription),
		errors.Is(err, session.ErrArtifactNotReady),
		errors.Is(err, cache.ErrMiss):
		return http.StatusNotFound
	case errors.Is(err, subscription.ErrSubscriptionExpired):
		return http.StatusGone
	case errors.Is(err, session.ErrPairingFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrClientUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error()}

	var pe *dispatch.PreconditionError
	if errors.As(err, &pe) {
		body.Kind = preconditionKind(pe.Kind)
		if pe.Limit != 0 || pe.Actual != 0 {
			body.Limit = &pe.Limit
			body.Actual = &pe.Actual
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func preconditionKind(kind error) string {
	switch kind {
	case dispatch.ErrNotConnected:
		return "not_connected"
	case dispatch.ErrNoSubscription:
		return "no_subscription"
	case dispatch.ErrSubscriptionExpired:
		return "subscription_expired"
	case dispatch.ErrInsufficientQuota:
		return "insufficient_quota"
	case dispatch.ErrMessageTooLong:
		return "message_too_long"
	case dispatch.ErrConnectionInactive:
		return "connection_inactive"
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
