package testserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
	"github.com/rpggio/sendgate/internal/domain/subscription"
	"github.com/rpggio/sendgate/internal/mcp"
	"github.com/rpggio/sendgate/internal/pairing"
	"github.com/rpggio/sendgate/internal/sqlite"
	"github.com/rpggio/sendgate/internal/transport"
	"github.com/stretchr/testify/require"
)

// TestServer runs the full HTTP and MCP surface over an in-memory database.
// Protocol clients are scripted through Factory.
type TestServer struct {
	Server        *httptest.Server
	DB            *sqlite.DB
	Token         string
	TenantID      string
	Factory       *Factory
	Registry      *session.Registry
	Subscriptions *sqlite.SubscriptionRepository
}

func New(t *testing.T, token, tenantID string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	connRepo := sqlite.NewConnectionRepository(db)
	credRepo := sqlite.NewCredentialRepository(db)
	userRepo := sqlite.NewUserRepository(db)
	subRepo := sqlite.NewSubscriptionRepository(db)
	contactRepo := sqlite.NewContactRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)

	factory := &Factory{clients: make(map[string]*Client), handlers: make(map[string]session.EventHandler)}
	cfg := session.Config{
		Backoff:             session.DefaultBackoff(),
		PairingPollAttempts: 3,
		PairingPollInterval: 10 * time.Millisecond,
		ArtifactWait:        50 * time.Millisecond,
		EventTimeout:        time.Second,
	}
	registry := session.NewRegistry(cfg, credRepo, connRepo, userRepo, factory, pairing.NewEncoder(), nil, nil)

	subscriptionSvc := subscription.NewService(subRepo, nil)
	messageSvc := message.NewService(messageRepo, contactRepo, nil)
	dispatcher := dispatch.NewService(
		dispatch.Config{ReconnectGrace: 50 * time.Millisecond},
		connRepo, subscriptionSvc, registry, messageRepo, contactRepo, nil, nil,
	)

	resolver := &apiKeyResolver{db: db}
	router := transport.NewServer(transport.Services{
		Sessions:      registry,
		Dispatch:      dispatcher,
		Messages:      messageSvc,
		Subscriptions: subscriptionSvc,
	}, transport.AuthMiddleware(resolver), nil)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Sessions: registry,
			Dispatch: dispatcher,
			Messages: messageSvc,
		},
		Resolver:      resolver,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		nil,
	)
	router.Handle("/mcp", mcpHandler)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:        server,
		DB:            db,
		Token:         token,
		TenantID:      tenantID,
		Factory:       factory,
		Registry:      registry,
		Subscriptions: subRepo,
	}

	require.NoError(t, ts.AddAPIKey(token, tenantID))

	t.Cleanup(func() {
		server.Close()
		registry.Shutdown(context.Background())
		_ = db.Close()
	})

	return ts
}

func (ts *TestServer) AddAPIKey(token, tenantID string) error {
	hash := hashToken(token)
	_, err := ts.DB.Exec(
		`INSERT INTO api_keys (key_hash, tenant_id, created_at) VALUES (?, ?, ?)`,
		hash, tenantID, time.Now(),
	)
	return err
}

// AddSubscription gives the tenant an active plan running for the next 30 days.
func (ts *TestServer) AddSubscription(ctx context.Context, tenantID string, messages, characters int) (*subscription.Subscription, error) {
	now := time.Now().UTC()
	sub := &subscription.Subscription{
		ID:                "sub-" + tenantID,
		TenantID:          tenantID,
		PlanName:          "test",
		MessagesLimit:     messages,
		MessagesRemaining: messages,
		CharactersLimit:   characters,
		StartDate:         now.Add(-time.Hour),
		EndDate:           now.Add(30 * 24 * time.Hour),
		Status:            subscription.StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := ts.Subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Factory hands out scripted clients and keeps each tenant's latest event handler.
type Factory struct {
	mu       sync.Mutex
	clients  map[string]*Client
	handlers map[string]session.EventHandler
}

func (f *Factory) Create(_ context.Context, tenantID string, _ session.Credentials, handler session.EventHandler) (session.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &Client{}
	f.clients[tenantID] = c
	f.handlers[tenantID] = handler
	return c, nil
}

// Emit delivers a lifecycle event to the tenant's current client handler.
func (f *Factory) Emit(tenantID string, ev session.Event) bool {
	f.mu.Lock()
	h := f.handlers[tenantID]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(ev)
	return true
}

// Client returns the tenant's most recent client, or nil.
func (f *Factory) Client(tenantID string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[tenantID]
}

// Client records sends. Rejected destinations fail.
type Client struct {
	mu       sync.Mutex
	sent     []string
	rejected map[string]bool
}

// Reject makes every later send to destination fail.
func (c *Client) Reject(destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected == nil {
		c.rejected = make(map[string]bool)
	}
	c.rejected[destination] = true
}

func (c *Client) Send(_ context.Context, destination, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected[destination] {
		return "", fmt.Errorf("recipient %s not on network", destination)
	}
	c.sent = append(c.sent, destination+":"+body)
	return fmt.Sprintf("remote-%d", len(c.sent)), nil
}

func (c *Client) RequestPairingCode(context.Context, string) (string, error) {
	return "abcd1234", nil
}

func (c *Client) Logout(context.Context) error { return nil }

func (c *Client) Close() error { return nil }

func (c *Client) Identity() string { return "" }

// Sent lists delivered messages as "destination:body".
func (c *Client) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type apiKeyResolver struct {
	db *sqlite.DB
}

func (r *apiKeyResolver) ResolveTenant(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	var tenantID string
	err := r.db.QueryRowContext(ctx, `SELECT tenant_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&tenantID)
	if err != nil || tenantID == "" {
		return "", transport.ErrUnauthorized
	}
	return tenantID, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
