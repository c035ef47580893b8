package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
)

const serverInstructions = `Sendgate links one WhatsApp account per tenant and sends metered message batches through it.

Typical flow: initialize_session, then get_pairing_artifact (scan the QR image) or request_pairing_code
(enter the code on the phone). Poll get_status until connected is true, then call send_bulk.
send_bulk checks the subscription quota and message length before sending anything.`

// SessionService defines session lifecycle operations needed by MCP.
type SessionService interface {
	Initialize(ctx context.Context, tenantID string, retry bool) error
	GetPairingArtifact(ctx context.Context, tenantID string) (string, error)
	RequestPairingCode(ctx context.Context, tenantID, phone string) (string, error)
	GetStatus(ctx context.Context, tenantID string) (session.Status, error)
	Disconnect(ctx context.Context, tenantID string) error
}

// DispatchService defines bulk sending needed by MCP.
type DispatchService interface {
	SendBulk(ctx context.Context, tenantID string, msgs []dispatch.OutgoingMessage) (*dispatch.Result, error)
}

// MessageService defines message log reads needed by MCP.
type MessageService interface {
	Statistics(ctx context.Context, tenantID string) (message.Statistics, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Sessions SessionService
	Dispatch DispatchService
	Messages MessageService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      TenantResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "sendgate",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	// Stdio mode: always disable auth (local use only)
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		server.AddReceivingMiddleware(noAuthMiddleware(DefaultTenant))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services)

	return server
}
