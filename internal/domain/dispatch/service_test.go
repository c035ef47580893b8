package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/rpggio/sendgate/internal/repository"
	"github.com/rpggio/sendgate/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant1"

type fixture struct {
	conns    *mocks.ConnectionStore
	subs     *mocks.SubscriptionRepository
	sessions *mocks.Sessions
	messages *mocks.MessageRepository
	contacts *mocks.ContactRepository
	cache    *mocks.SentCache
	client   *mocks.Client
	svc      *dispatch.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conns:    &mocks.ConnectionStore{},
		subs:     &mocks.SubscriptionRepository{},
		sessions: &mocks.Sessions{},
		messages: &mocks.MessageRepository{},
		contacts: &mocks.ContactRepository{},
		cache:    &mocks.SentCache{},
		client:   &mocks.Client{},
	}
	f.svc = dispatch.NewService(
		dispatch.Config{},
		f.conns,
		subscription.NewService(f.subs, nil),
		f.sessions,
		f.messages,
		f.contacts,
		f.cache,
		nil,
	)
	return f
}

func (f *fixture) connected() {
	f.conns.On("Get", mock.Anything, tenantID).Return(&session.ConnectionRecord{TenantID: tenantID, IsConnected: true}, nil)
}

func (f *fixture) plan(remaining, chars int) {
	f.subs.On("GetActive", mock.Anything, tenantID).Return(&subscription.Subscription{
		ID:                "sub1",
		TenantID:          tenantID,
		MessagesLimit:     100,
		MessagesUsed:      100 - remaining,
		MessagesRemaining: remaining,
		CharactersLimit:   chars,
		EndDate:           time.Now().Add(time.Hour),
		Status:            subscription.StatusActive,
	}, nil)
}

func TestSendBulk_SendsRecordsAndSettles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 160)

	f.sessions.On("LiveClient", tenantID).Return(f.client, true)
	f.client.On("Send", mock.Anything, "15550001", "hello").Return("remote-1", nil)
	f.client.On("Send", mock.Anything, "15550002", "hello").Return("", errors.New("not on network"))
	f.contacts.On("FindByPhone", mock.Anything, tenantID, "15550001").Return(&message.Contact{ID: "c1", Name: "Alice"}, nil)
	f.contacts.On("FindByPhone", mock.Anything, tenantID, "15550002").Return((*message.Contact)(nil), repository.ErrNotFound)
	f.messages.On("AppendBatch", mock.Anything, mock.MatchedBy(func(recs []message.Record) bool {
		return len(recs) == 2 &&
			recs[0].Status == message.StatusSent && recs[0].RecipientName == "Alice" && *recs[0].ContactID == "c1" &&
			recs[1].Status == message.StatusFailed && recs[1].Error == "not on network" && recs[1].ContactID == nil
	})).Return(nil)
	f.cache.On("StoreSent", mock.Anything, mock.Anything, "remote-1", mock.Anything).Return(nil)
	f.subs.On("Settle", mock.Anything, "sub1", 1).Return(nil)

	result, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{
		{Destination: "+1 555-0001", Body: "hello"},
		{Destination: "1555-0002", Body: "hello", DisplayName: "Bob"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 2)
	require.Equal(t, message.StatusSent, result.Outcomes[0].Status)
	require.Equal(t, "remote-1", result.Outcomes[0].MessageID)
	require.Equal(t, message.StatusFailed, result.Outcomes[1].Status)
	require.Equal(t, "Bob", result.Outcomes[1].DisplayName)

	f.messages.AssertExpectations(t)
	f.subs.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestSendBulk_AllFailedDoesNotSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 160)

	f.sessions.On("LiveClient", tenantID).Return(f.client, true)
	f.client.On("Send", mock.Anything, "15550001", "hi").Return("", errors.New("timeout"))
	f.contacts.On("FindByPhone", mock.Anything, tenantID, "15550001").Return((*message.Contact)(nil), repository.ErrNotFound)
	f.messages.On("AppendBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "15550001", Body: "hi"}})
	require.NoError(t, err)
	require.Equal(t, 0, result.Sent)
	f.subs.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "StoreSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendBulk_AuditFailureKeepsResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 160)

	f.sessions.On("LiveClient", tenantID).Return(f.client, true)
	f.client.On("Send", mock.Anything, "15550001", "hi").Return("remote-1", nil)
	f.contacts.On("FindByPhone", mock.Anything, tenantID, "15550001").Return((*message.Contact)(nil), repository.ErrNotFound)
	f.messages.On("AppendBatch", mock.Anything, mock.Anything).Return(errors.New("database locked"))
	f.cache.On("StoreSent", mock.Anything, mock.Anything, "remote-1", mock.Anything).Return(errors.New("redis down"))
	f.subs.On("Settle", mock.Anything, "sub1", 1).Return(nil)

	result, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "15550001", Body: "hi"}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent)
	f.subs.AssertExpectations(t)
}

func TestSendBulk_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendBulk(context.Background(), tenantID, nil)
	require.ErrorIs(t, err, dispatch.ErrEmptyBatch)
}

func TestSendBulk_NotConnected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.conns.On("Get", mock.Anything, tenantID).Return((*session.ConnectionRecord)(nil), repository.ErrNotFound)

	_, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "1", Body: "x"}})
	require.ErrorIs(t, err, dispatch.ErrNotConnected)

	var pe *dispatch.PreconditionError
	require.ErrorAs(t, err, &pe)
	f.sessions.AssertNotCalled(t, "LiveClient", mock.Anything)
}

func TestSendBulk_NoSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.subs.On("GetActive", mock.Anything, tenantID).Return((*subscription.Subscription)(nil), repository.ErrNotFound)

	_, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "1", Body: "x"}})
	require.ErrorIs(t, err, dispatch.ErrNoSubscription)
}

func TestSendBulk_ExpiredSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.subs.On("GetActive", mock.Anything, tenantID).Return(&subscription.Subscription{
		ID:                "sub1",
		MessagesRemaining: 10,
		CharactersLimit:   100,
		EndDate:           time.Now().Add(-time.Second),
	}, nil)
	f.subs.On("MarkExpired", mock.Anything, "sub1").Return(nil)

	_, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "1", Body: "x"}})
	require.ErrorIs(t, err, dispatch.ErrSubscriptionExpired)
	f.subs.AssertCalled(t, "MarkExpired", mock.Anything, "sub1")
}

func TestSendBulk_InsufficientQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(1, 160)

	_, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{
		{Destination: "1", Body: "a"},
		{Destination: "2", Body: "b"},
	})
	require.ErrorIs(t, err, dispatch.ErrInsufficientQuota)
	require.EqualError(t, err, "You only have 1 messages remaining, but you're trying to send 2 messages")
	f.sessions.AssertNotCalled(t, "LiveClient", mock.Anything)
}

func TestSendBulk_LengthCountsCodePoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 4)

	_, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{
		{Destination: "1", Body: "olá"},
		{Destination: "2", Body: "héllo"},
	})
	require.ErrorIs(t, err, dispatch.ErrMessageTooLong)
	require.EqualError(t, err, "Message is too long. Maximum 4 characters allowed, but your message has 5 characters.")

	var pe *dispatch.PreconditionError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 4, pe.Limit)
	require.Equal(t, 5, pe.Actual)
}

func TestSendBulk_StaleDurableRecordReinitializes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 160)

	f.sessions.On("LiveClient", tenantID).Return(nil, false).Once()
	f.sessions.On("Initialize", mock.Anything, tenantID, true).Return(nil)
	f.sessions.On("LiveClient", tenantID).Return(f.client, true).Once()
	f.client.On("Send", mock.Anything, "15550001", "hi").Return("remote-1", nil)
	f.contacts.On("FindByPhone", mock.Anything, tenantID, "15550001").Return((*message.Contact)(nil), repository.ErrNotFound)
	f.messages.On("AppendBatch", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("StoreSent", mock.Anything, mock.Anything, "remote-1", mock.Anything).Return(nil)
	f.subs.On("Settle", mock.Anything, "sub1", 1).Return(nil)

	result, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "15550001", Body: "hi"}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent)
	f.sessions.AssertExpectations(t)
}

func TestSendBulk_ConnectionInactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 160)

	f.sessions.On("LiveClient", tenantID).Return(nil, false)
	f.sessions.On("Initialize", mock.Anything, tenantID, true).Return(session.ErrInitInProgress)

	_, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{{Destination: "1", Body: "x"}})
	require.ErrorIs(t, err, dispatch.ErrConnectionInactive)
	f.client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	f.messages.AssertNotCalled(t, "AppendBatch", mock.Anything, mock.Anything)
}

func TestSendBulk_InvalidDestinationFailsOnlyThatMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connected()
	f.plan(10, 160)

	f.sessions.On("LiveClient", tenantID).Return(f.client, true)
	f.client.On("Send", mock.Anything, "15550001", "hi").Return("remote-1", nil)
	f.contacts.On("FindByPhone", mock.Anything, tenantID, "15550001").Return((*message.Contact)(nil), repository.ErrNotFound)
	f.messages.On("AppendBatch", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("StoreSent", mock.Anything, mock.Anything, "remote-1", mock.Anything).Return(nil)
	f.subs.On("Settle", mock.Anything, "sub1", 1).Return(nil)

	result, err := f.svc.SendBulk(ctx, tenantID, []dispatch.OutgoingMessage{
		{Destination: "n/a", Body: "hi"},
		{Destination: "15550001", Body: "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, message.StatusFailed, result.Outcomes[0].Status)
	require.Equal(t, message.StatusSent, result.Outcomes[1].Status)
}
