package session

import "errors"

var (
	// ErrInitInProgress indicates another initialize call for the tenant has not registered its client yet.
	ErrInitInProgress = errors.New("session initialization already in progress")
	// ErrClientUnavailable indicates no client could be brought up for the tenant.
	ErrClientUnavailable = errors.New("failed to initialize messaging client")
	// ErrPairingNotReady indicates the client has not produced a pairing challenge yet.
	ErrPairingNotReady = errors.New("connection not ready for pairing")
	// ErrPairingFailed wraps a pairing-code request rejected by the network.
	ErrPairingFailed = errors.New("pairing code request failed")
	// ErrArtifactNotReady indicates no pairing artifact is available yet.
	ErrArtifactNotReady = errors.New("pairing artifact not ready")
	// ErrAlreadyConnected indicates the tenant's session is already paired and open.
	ErrAlreadyConnected = errors.New("session already connected")
	// ErrNotConnected indicates there is no open client for the tenant.
	ErrNotConnected = errors.New("session not connected")
	// ErrInvalidPhone indicates a phone number with no digits.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidInput indicates invalid session input.
	ErrInvalidInput = errors.New("invalid session input")
)
