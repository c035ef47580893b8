package mocks

import (
	"context"
	"time"

	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/stretchr/testify/mock"
)

// CredentialStore is a mock for session.CredentialStore.
type CredentialStore struct {
	mock.Mock
}

func (m *CredentialStore) Load(ctx context.Context, tenantID string) (session.Credentials, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(session.Credentials), args.Error(1)
}

func (m *CredentialStore) Save(ctx context.Context, creds session.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *CredentialStore) Delete(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// ConnectionStore is a mock for session.ConnectionStore.
type ConnectionStore struct {
	mock.Mock
}

func (m *ConnectionStore) Get(ctx context.Context, tenantID string) (*session.ConnectionRecord, error) {
	args := m.Called(ctx, tenantID)
	if rec, ok := args.Get(0).(*session.ConnectionRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ConnectionStore) Upsert(ctx context.Context, rec *session.ConnectionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *ConnectionStore) MarkDisconnected(ctx context.Context, tenantID string, at time.Time) error {
	args := m.Called(ctx, tenantID, at)
	return args.Error(0)
}

func (m *ConnectionStore) ListConnected(ctx context.Context) ([]session.ConnectionRecord, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]session.ConnectionRecord); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ProfileStore is a mock for session.ProfileStore.
type ProfileStore struct {
	mock.Mock
}

func (m *ProfileStore) UpdatePhoneNumber(ctx context.Context, tenantID, phone string) error {
	args := m.Called(ctx, tenantID, phone)
	return args.Error(0)
}

// Client is a mock for session.Client.
type Client struct {
	mock.Mock
}

func (m *Client) Send(ctx context.Context, destination, body string) (string, error) {
	args := m.Called(ctx, destination, body)
	return args.String(0), args.Error(1)
}

func (m *Client) RequestPairingCode(ctx context.Context, phoneDigits string) (string, error) {
	args := m.Called(ctx, phoneDigits)
	return args.String(0), args.Error(1)
}

func (m *Client) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Client) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Client) Identity() string {
	args := m.Called()
	return args.String(0)
}

// Sessions is a mock for dispatch.Sessions.
type Sessions struct {
	mock.Mock
}

func (m *Sessions) LiveClient(tenantID string) (session.Client, bool) {
	args := m.Called(tenantID)
	if client, ok := args.Get(0).(session.Client); ok {
		return client, args.Bool(1)
	}
	return nil, args.Bool(1)
}

func (m *Sessions) Initialize(ctx context.Context, tenantID string, retry bool) error {
	args := m.Called(ctx, tenantID, retry)
	return args.Error(0)
}

// SubscriptionRepository is a mock for subscription.Repository.
type SubscriptionRepository struct {
	mock.Mock
}

func (m *SubscriptionRepository) GetActive(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if sub, ok := args.Get(0).(*subscription.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SubscriptionRepository) MarkExpired(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *SubscriptionRepository) Settle(ctx context.Context, id string, sent int) error {
	args := m.Called(ctx, id, sent)
	return args.Error(0)
}

// MessageRepository is a mock for message.Repository.
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) AppendBatch(ctx context.Context, records []message.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MessageRepository) List(ctx context.Context, tenantID string, opts message.ListOptions) ([]message.Record, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]message.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) Statistics(ctx context.Context, tenantID string) (message.Statistics, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(message.Statistics), args.Error(1)
}

func (m *MessageRepository) Grouped(ctx context.Context, tenantID string, opts message.ListOptions) ([]message.Group, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]message.Group); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ContactRepository is a mock for message.ContactStore.
type ContactRepository struct {
	mock.Mock
}

func (m *ContactRepository) FindByPhone(ctx context.Context, tenantID, phoneDigits string) (*message.Contact, error) {
	args := m.Called(ctx, tenantID, phoneDigits)
	if c, ok := args.Get(0).(*message.Contact); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ContactRepository) Create(ctx context.Context, c *message.Contact) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// SentCache is a mock for dispatch.SentCache.
type SentCache struct {
	mock.Mock
}

func (m *SentCache) StoreSent(ctx context.Context, recordID, remoteID string, sentAt time.Time) error {
	args := m.Called(ctx, recordID, remoteID, sentAt)
	return args.Error(0)
}
