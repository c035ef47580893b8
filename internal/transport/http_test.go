package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/sendgate/internal/cache"
	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	initErr     error
	initTenant  string
	artifact    string
	artifactErr error
	code        string
	codePhone   string
	status      session.Status
	disconnects int
}

func (f *fakeSessions) Initialize(_ context.Context, tenantID string, _ bool) error {
	f.initTenant = tenantID
	return f.initErr
}

func (f *fakeSessions) GetPairingArtifact(context.Context, string) (string, error) {
	return f.artifact, f.artifactErr
}

func (f *fakeSessions) RequestPairingCode(_ context.Context, _ string, phone string) (string, error) {
	f.codePhone = phone
	return f.code, nil
}

func (f *fakeSessions) GetStatus(context.Context, string) (session.Status, error) {
	return f.status, nil
}

func (f *fakeSessions) Disconnect(context.Context, string) error {
	f.disconnects++
	return nil
}

type fakeDispatch struct {
	got    []dispatch.OutgoingMessage
	result *dispatch.Result
	err    error
}

func (f *fakeDispatch) SendBulk(_ context.Context, _ string, msgs []dispatch.OutgoingMessage) (*dispatch.Result, error) {
	f.got = msgs
	return f.result, f.err
}

type fakeMessages struct {
	opts  message.ListOptions
	stats message.Statistics
	err   error
}

func (f *fakeMessages) List(_ context.Context, _ string, opts message.ListOptions) ([]message.Record, error) {
	f.opts = opts
	return nil, f.err
}

func (f *fakeMessages) Statistics(context.Context, string) (message.Statistics, error) {
	return f.stats, f.err
}

func (f *fakeMessages) Grouped(_ context.Context, _ string, opts message.ListOptions) ([]message.Group, error) {
	f.opts = opts
	return []message.Group{{Body: "hi", Total: 2, Sent: 2}}, f.err
}

func (f *fakeMessages) AddContact(_ context.Context, tenantID string, req message.AddContactRequest) (*message.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &message.Contact{ID: "c1", TenantID: tenantID, Name: req.Name, Phone: req.Phone}, nil
}

type fakeSubscriptions struct {
	sub *subscription.Subscription
	err error
}

func (f *fakeSubscriptions) Current(context.Context, string) (*subscription.Subscription, error) {
	return f.sub, f.err
}

type fakeDeliveries struct{}

func (fakeDeliveries) LookupSent(_ context.Context, recordID string) (cache.SentEntry, error) {
	if recordID != "m1" {
		return cache.SentEntry{}, cache.ErrMiss
	}
	return cache.SentEntry{RemoteMessageID: "r1", SentAt: time.Unix(0, 0).UTC()}, nil
}

type staticResolver struct {
	tenant string
}

func (r *staticResolver) ResolveTenant(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	return r.tenant, nil
}

type harness struct {
	server   *httptest.Server
	sessions *fakeSessions
	dispatch *fakeDispatch
	messages *fakeMessages
	subs     *fakeSubscriptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sessions: &fakeSessions{},
		dispatch: &fakeDispatch{},
		messages: &fakeMessages{},
		subs:     &fakeSubscriptions{},
	}
	handler := NewServer(Services{
		Sessions:      h.sessions,
		Dispatch:      h.dispatch,
		Messages:      h.messages,
		Subscriptions: h.subs,
		Deliveries:    fakeDeliveries{},
	}, AuthMiddleware(&staticResolver{tenant: "tenant1"}), nil)
	h.server = httptest.NewServer(handler)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHTTPServer_Health(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_RequiresAuth(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/v1/session/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPServer_Initialize(t *testing.T) {
	h := newHarness(t)
	h.sessions.status = session.Status{State: session.StateInitializing}

	resp, body := h.do(t, http.MethodPost, "/v1/session/initialize", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "tenant1", h.sessions.initTenant)
	require.Equal(t, "INITIALIZING", body["state"])

	// An initialize already running is not an error
	h.sessions.initErr = session.ErrInitInProgress
	resp, _ = h.do(t, http.MethodPost, "/v1/session/initialize", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	h.sessions.initErr = session.ErrClientUnavailable
	resp, _ = h.do(t, http.MethodPost, "/v1/session/initialize", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHTTPServer_Pairing(t *testing.T) {
	h := newHarness(t)
	h.sessions.artifact = "data:image/png;base64,AAA"

	resp, body := h.do(t, http.MethodGet, "/v1/session/pairing", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "data:image/png;base64,AAA", body["qr"])

	h.sessions.artifactErr = session.ErrArtifactNotReady
	resp, _ = h.do(t, http.MethodGet, "/v1/session/pairing", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.sessions.artifactErr = session.ErrAlreadyConnected
	resp, _ = h.do(t, http.MethodGet, "/v1/session/pairing", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTPServer_PairingCode(t *testing.T) {
	h := newHarness(t)
	h.sessions.code = "ABCD-EFGH"

	resp, body := h.do(t, http.MethodPost, "/v1/session/pairing-code", `{"phone":"+55 11 99999-0000"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ABCD-EFGH", body["code"])
	require.Equal(t, "+55 11 99999-0000", h.sessions.codePhone)

	resp, _ = h.do(t, http.MethodPost, "/v1/session/pairing-code", `{`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPServer_StatusAndDisconnect(t *testing.T) {
	h := newHarness(t)
	h.sessions.status = session.Status{Connected: true, PhoneNumber: "5511999990000", State: session.StateConnected}

	resp, body := h.do(t, http.MethodGet, "/v1/session/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["connected"])
	require.Equal(t, "5511999990000", body["phone_number"])

	resp, _ = h.do(t, http.MethodPost, "/v1/session/disconnect", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, h.sessions.disconnects)
}

func TestHTTPServer_SendBulk(t *testing.T) {
	h := newHarness(t)
	h.dispatch.result = &dispatch.Result{
		Outcomes: []dispatch.Outcome{{Destination: "5511999990000", Status: message.StatusSent, MessageID: "r1"}},
		Sent:     1,
	}

	resp, body := h.do(t, http.MethodPost, "/v1/messages/bulk", `{"messages":[{"phone":"5511999990000","message":"hi","name":"Ana"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), body["sent"])
	require.Len(t, h.dispatch.got, 1)
	require.Equal(t, "Ana", h.dispatch.got[0].DisplayName)
	require.Equal(t, "hi", h.dispatch.got[0].Body)
}

func TestHTTPServer_SendBulkPreconditions(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"not connected", &dispatch.PreconditionError{Kind: dispatch.ErrNotConnected}, http.StatusConflict, "not_connected"},
		{"quota", &dispatch.PreconditionError{Kind: dispatch.ErrInsufficientQuota, Limit: 1, Actual: 3, Message: "You only have 1 messages remaining, but you're trying to send 3 messages"}, http.StatusPaymentRequired, "insufficient_quota"},
		{"too long", &dispatch.PreconditionError{Kind: dispatch.ErrMessageTooLong, Limit: 5, Actual: 9}, http.StatusBadRequest, "message_too_long"},
		{"empty", dispatch.ErrEmptyBatch, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.dispatch.err = tt.err
			resp, body := h.do(t, http.MethodPost, "/v1/messages/bulk", `{"messages":[]}`)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.err.Error(), body["error"])
			if tt.kind != "" {
				require.Equal(t, tt.kind, body["kind"])
			}
		})
	}

	h.dispatch.err = &dispatch.PreconditionError{Kind: dispatch.ErrInsufficientQuota, Limit: 1, Actual: 3}
	_, body := h.do(t, http.MethodPost, "/v1/messages/bulk", `{"messages":[]}`)
	require.Equal(t, float64(1), body["limit"])
	require.Equal(t, float64(3), body["actual"])
}

func TestHTTPServer_InternalErrorsAreHidden(t *testing.T) {
	h := newHarness(t)
	h.dispatch.err = errors.New("database exploded")

	resp, body := h.do(t, http.MethodPost, "/v1/messages/bulk", `{"messages":[]}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "internal error", body["error"])
}

func TestHTTPServer_MessageReads(t *testing.T) {
	h := newHarness(t)
	h.messages.stats = message.Statistics{Total: 3, Sent: 2, Failed: 1}

	resp, body := h.do(t, http.MethodGet, "/v1/messages?status=FAILED&limit=10&offset=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, body["messages"])
	require.NotNil(t, h.messages.opts.Status)
	require.Equal(t, message.StatusFailed, *h.messages.opts.Status)
	require.Equal(t, 10, h.messages.opts.Limit)
	require.Equal(t, 5, h.messages.opts.Offset)

	resp, _ = h.do(t, http.MethodGet, "/v1/messages?limit=many", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/v1/messages/statistics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(3), body["total"])

	resp, body = h.do(t, http.MethodGet, "/v1/messages/grouped", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["groups"], 1)
}

func TestHTTPServer_Delivery(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/v1/messages/m1/delivery", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "r1", body["remoteMessageId"])

	resp, _ = h.do(t, http.MethodGet, "/v1/messages/m2/delivery", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServer_AddContact(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/v1/contacts", `{"name":"Ana","phone":"5511999990000"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "Ana", body["name"])

	h.messages.err = message.ErrContactExists
	resp, _ = h.do(t, http.MethodPost, "/v1/contacts", `{"name":"Ana","phone":"5511999990000"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTPServer_Subscription(t *testing.T) {
	h := newHarness(t)
	h.subs.sub = &subscription.Subscription{ID: "s1", MessagesRemaining: 7}

	resp, body := h.do(t, http.MethodGet, "/v1/subscription", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(7), body["messages_remaining"])

	h.subs.err = subscription.ErrNoSubscription
	resp, _ = h.do(t, http.MethodGet, "/v1/subscription", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.subs.err = subscription.ErrSubscriptionExpired
	resp, _ = h.do(t, http.MethodGet, "/v1/subscription", "")
	require.Equal(t, http.StatusGone, resp.StatusCode)
}
