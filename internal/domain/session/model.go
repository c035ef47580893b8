package session

import "time"

// State is the lifecycle position of a tenant's session.
type State string

const (
	StateUninitialized   State = "UNINITIALIZED"
	StateInitializing    State = "INITIALIZING"
	StateAwaitingPairing State = "AWAITING_PAIRING"
	StateConnected       State = "CONNECTED"
	StateClosed          State = "CLOSED"
)

// EventKind identifies a lifecycle signal raised by a protocol client.
type EventKind string

const (
	EventPairingChallenge EventKind = "pairing_challenge"
	EventConnectionOpen   EventKind = "connection_open"
	EventConnectionClosed EventKind = "connection_closed"
)

// Event is a lifecycle signal from a protocol client.
type Event struct {
	Kind EventKind
	// Challenge is the raw pairing payload for EventPairingChallenge.
	Challenge string
	// Identity is the account phone number for EventConnectionOpen.
	Identity string
	// DeviceID is the network-assigned device identifier for EventConnectionOpen.
	DeviceID string
	// LoggedOut marks a terminal close: the remote side revoked the pairing.
	LoggedOut bool
	Err       error
}

// Credentials is the per-tenant material needed to resume a pairing.
type Credentials struct {
	TenantID  string    `json:"tenant_id"`
	DeviceID  string    `json:"device_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether there is nothing to resume from.
func (c Credentials) Empty() bool {
	return c.DeviceID == ""
}

// ConnectionRecord is the durable view of a tenant's connection.
type ConnectionRecord struct {
	TenantID    string    `json:"tenant_id"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	IsConnected bool      `json:"is_connected"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status is the answer to a status query.
type Status struct {
	Connected   bool   `json:"connected"`
	PhoneNumber string `json:"phone_number,omitempty"`
	State       State  `json:"state"`
}

// Session is the in-memory state kept for one tenant.
// All fields are guarded by the owning Registry's mutex.
type Session struct {
	TenantID          string
	State             State
	Connected         bool
	Initializing      bool
	PairingArtifact   string
	ReconnectAttempts int

	client     Client
	generation uint64
	events     chan envelope
	done       chan struct{}
}

type envelope struct {
	generation uint64
	event      Event
}
