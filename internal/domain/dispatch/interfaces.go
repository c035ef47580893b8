package dispatch

import (
	"context"
	"time"

	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
)

// ConnectionReader reads the durable connection record.
type ConnectionReader interface {
	Get(ctx context.Context, tenantID string) (*session.ConnectionRecord, error)
}

// Subscriptions resolves and charges the tenant's plan.
type Subscriptions interface {
	Current(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	Settle(ctx context.Context, id string, sent int) error
}

// Sessions exposes the live client and the re-initialize hook.
type Sessions interface {
	LiveClient(tenantID string) (session.Client, bool)
	Initialize(ctx context.Context, tenantID string, retry bool) error
}

// MessageLog appends audit records.
type MessageLog interface {
	AppendBatch(ctx context.Context, records []message.Record) error
}

// SentCache remembers remote ids of delivered messages for later lookups.
type SentCache interface {
	StoreSent(ctx context.Context, recordID, remoteID string, sentAt time.Time) error
}
