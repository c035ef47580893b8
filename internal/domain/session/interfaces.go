package session

import (
	"context"
	"time"
)

// CredentialStore persists per-tenant pairing credentials.
// Load returns repository.ErrNotFound when the tenant has none.
type CredentialStore interface {
	Load(ctx context.Context, tenantID string) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Delete(ctx context.Context, tenantID string) error
}

// ConnectionStore persists the durable connection record.
type ConnectionStore interface {
	Get(ctx context.Context, tenantID string) (*ConnectionRecord, error)
	Upsert(ctx context.Context, rec *ConnectionRecord) error
	MarkDisconnected(ctx context.Context, tenantID string, at time.Time) error
	ListConnected(ctx context.Context) ([]ConnectionRecord, error)
}

// ProfileStore updates the tenant's profile with the paired phone number.
type ProfileStore interface {
	UpdatePhoneNumber(ctx context.Context, tenantID, phone string) error
}

// Client is a live protocol client for one tenant.
type Client interface {
	// Send delivers a text body to a digits-only destination and returns the network message id.
	Send(ctx context.Context, destination, body string) (string, error)
	RequestPairingCode(ctx context.Context, phoneDigits string) (string, error)
	Logout(ctx context.Context) error
	Close() error
	// Identity returns the paired account's phone number, or "" before pairing.
	Identity() string
}

// EventHandler receives lifecycle events for a single client.
type EventHandler func(Event)

// ClientFactory builds a client that starts connecting immediately.
// Events raised by the client must be delivered to handler in the order they occur.
type ClientFactory interface {
	Create(ctx context.Context, tenantID string, creds Credentials, handler EventHandler) (Client, error)
}

// PairingEncoder renders pairing material for display.
type PairingEncoder interface {
	// Image turns a pairing challenge into a scannable image artifact.
	Image(challenge string) (string, error)
	// FormatCode normalizes a short pairing code for manual entry.
	FormatCode(code string) string
}
